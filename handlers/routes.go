package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes groups the handlers mounted under /api
type Routes struct {
	Projects *ProjectHandler
	Session  *SessionHandler
	Frames   *FrameHandler
	Library  *LibraryHandler

	ArchivesSubDir string
	Archives       http.HandlerFunc
	WebSocket      http.HandlerFunc
}

func (rt Routes) Mount(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Route("/projects", func(r chi.Router) {
			r.Get("/", rt.Projects.ListProjects)
			r.Post("/", rt.Projects.CreateProject)
			r.Route("/{projectID}", func(r chi.Router) {
				r.Delete("/", rt.Projects.DeleteProject)
				r.Post("/open", rt.Projects.OpenProject)
				r.Get("/summary", rt.Projects.GetProjectSummary)
			})
		})

		r.Route("/session", func(r chi.Router) {
			r.Get("/", rt.Session.GetSession)
			r.Get("/status", rt.Session.GetStatus)
			r.Post("/scan", rt.Session.StartScan)
			r.Post("/reset", rt.Session.Reset)
			r.Put("/settings", rt.Session.UpdateScanSettings)
			r.Get("/frames", rt.Session.ListFrames)
			r.Post("/categories/suggest", rt.Session.SuggestCategories)
		})

		r.Route("/frames", func(r chi.Router) {
			r.Post("/batch-enhance", rt.Frames.BatchEnhance)
			r.Route("/{frameID}", func(r chi.Router) {
				r.Get("/", rt.Frames.GetFrame)
				r.Delete("/", rt.Frames.DeleteFrame)
				r.Post("/keeper", rt.Frames.ToggleKeeper)
				r.Put("/categories", rt.Frames.SetCategories)
				r.Put("/name", rt.Frames.Rename)
				r.Post("/enhance", rt.Frames.Enhance)
				r.Post("/save-as-new", rt.Frames.SaveAsNew)
				r.Post("/reanalyze", rt.Frames.Reanalyze)
				r.Get("/image", rt.Frames.Image)
				r.Get("/thumbnail", rt.Frames.Thumbnail)
				r.Get("/history/{recordID}/{side}", rt.Frames.HistoryImage)
			})
		})

		r.Route("/library", func(r chi.Router) {
			r.Get("/", rt.Library.ListKeepers)
			r.Get("/summaries", rt.Library.ListSummaries)
		})

		r.Route("/export", func(r chi.Router) {
			r.Get("/", rt.Library.DownloadExport)
			r.Get("/targets", rt.Library.ListTargets)
			r.Post("/{target}", rt.Library.DeliverExport)
		})

		if rt.Archives != nil && rt.ArchivesSubDir != "" {
			r.Get("/"+rt.ArchivesSubDir+"/*", rt.Archives)
		}
	})

	if rt.WebSocket != nil {
		r.Get("/ws", rt.WebSocket)
	}
}
