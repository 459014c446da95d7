// Package templates renders the HTML pages of the web server.
package templates

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/a-h/templ"
	"github.com/dustin/go-humanize"

	"github.com/JonMunkholm/vitibrasil/internal/core"
)

// DatasetRow is one line of the dataset table on the status page.
type DatasetRow struct {
	ID       core.DatasetID
	Label    string
	FileName string
	Facts    int
}

// StatusData is everything the status page shows.
type StatusData struct {
	Status   core.CacheStatus
	Datasets []DatasetRow
	History  []core.LoadEvent
	Now      time.Time
}

const statusStyle = `body{font-family:system-ui,sans-serif;margin:2rem;color:#222}
table{border-collapse:collapse;margin-bottom:2rem}
th,td{border:1px solid #ccc;padding:.3rem .6rem;text-align:left}
td.num{text-align:right}
.ok{color:#16794c}.fail{color:#b42318}`

// StatusPage renders the cache status, per-dataset counts and recent loads.
func StatusPage(data StatusData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &printer{w: w}
		p.raw(`<!DOCTYPE html><html lang="pt-BR"><head><meta charset="utf-8"><title>VitiBrasil</title><style>`)
		p.raw(statusStyle)
		p.raw(`</style></head><body><h1>VitiBrasil</h1>`)

		st := data.Status
		p.raw(`<p>Estado do cache: <strong>`)
		p.text(string(st.State))
		p.raw(`</strong>`)
		if st.LoadedAt != nil {
			p.raw(` &middot; carregado `)
			p.text(humanize.RelTime(*st.LoadedAt, data.Now, "atrás", "a partir de agora"))
			p.raw(` (geração <code>`)
			p.text(st.GenerationID)
			p.raw(`</code>)`)
		}
		p.raw(`</p>`)
		if st.LastError != "" {
			p.raw(`<p class="fail">Última falha: `)
			p.text(st.LastError)
			p.raw(`</p>`)
		}
		if st.LoadedAt != nil {
			p.raw(`<p>`)
			p.text(fmt.Sprintf("%s categorias, %s produtos, %s cultivares, %s países",
				humanize.Comma(int64(st.Categories)),
				humanize.Comma(int64(st.Products)),
				humanize.Comma(int64(st.Cultivars)),
				humanize.Comma(int64(st.Countries)),
			))
			p.raw(`</p>`)
		}

		p.raw(`<h2>Conjuntos de dados</h2><table><tr><th>Conjunto</th><th>Arquivo</th><th>Registros</th></tr>`)
		for _, ds := range data.Datasets {
			p.raw(`<tr><td>`)
			p.text(ds.Label)
			p.raw(`</td><td>`)
			p.text(ds.FileName)
			p.raw(`</td><td class="num">`)
			p.text(humanize.Comma(int64(ds.Facts)))
			p.raw(`</td></tr>`)
		}
		p.raw(`</table>`)

		p.raw(`<h2>Histórico</h2>`)
		if len(data.History) == 0 {
			p.raw(`<p>Nenhuma carga registrada.</p>`)
		} else {
			p.raw(`<table><tr><th>Quando</th><th>Ação</th><th>Resultado</th><th>Duração</th><th>Registros</th></tr>`)
			for _, ev := range data.History {
				p.raw(`<tr><td>`)
				p.text(humanize.RelTime(ev.StartedAt, data.Now, "atrás", "a partir de agora"))
				p.raw(`</td><td>`)
				p.text(string(ev.Action))
				if ev.Success {
					p.raw(`</td><td class="ok">ok`)
				} else {
					p.raw(`</td><td class="fail">`)
					p.text(ev.Error)
				}
				p.raw(`</td><td class="num">`)
				p.text(ev.Duration.Round(time.Millisecond).String())
				p.raw(`</td><td class="num">`)
				p.text(humanize.Comma(int64(totalFacts(ev.Facts))))
				p.raw(`</td></tr>`)
			}
			p.raw(`</table>`)
		}

		p.raw(`</body></html>`)
		return p.err
	})
}

func totalFacts(facts map[core.DatasetID]int) int {
	n := 0
	for _, c := range facts {
		n += c
	}
	return n
}

// printer writes until the first error.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) raw(s string) {
	if p.err != nil {
		return
	}
	_, p.err = io.WriteString(p.w, s)
}

func (p *printer) text(s string) {
	p.raw(templ.EscapeString(s))
}
