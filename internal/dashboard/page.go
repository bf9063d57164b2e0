package dashboard

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/rs/zerolog/log"

	"BandWatch/internal/collector"
	"BandWatch/internal/model"
)

//go:embed templates/index.html
var templateFS embed.FS

var indexTmpl = template.Must(template.ParseFS(templateFS, "templates/index.html"))

type pageData struct {
	Intervals []int
	Lookbacks []string
	Default   int
	Params    model.BandParams
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := pageData{
		Intervals: collector.ValidIntervals,
		Lookbacks: collector.Lookbacks,
		Default:   collector.DefaultInterval,
		Params:    s.opts.Params,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTmpl.Execute(w, data); err != nil {
		log.Error().Err(err).Msg("render index")
	}
}
