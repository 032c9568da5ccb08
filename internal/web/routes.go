package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/detect"
	"github.com/kozaktomas/face-attendance/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	encoderOpts := detect.Options{
		Mode:         s.config.Detector.Mode,
		NumJitters:   s.config.Detector.NumJitters,
		EncoderModel: s.config.Detector.EncoderModel,
	}

	recognizeHandler := handlers.NewRecognizeHandler(s.session, s.attendance)
	identitiesHandler := handlers.NewIdentitiesHandler(s.detector, s.identities, s.store, s.debouncer, encoderOpts)
	attendanceHandler := handlers.NewAttendanceHandler(s.attendance)

	// Health check
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		// Recognition
		r.Post("/recognize", recognizeHandler.Recognize)

		// Identities
		r.Get("/identities", identitiesHandler.List)
		r.Post("/identities", identitiesHandler.Enroll)
		r.Delete("/identities/{id}", identitiesHandler.Delete)
		r.Post("/identities/reload", identitiesHandler.Reload)

		// Attendance log
		r.Get("/attendance", attendanceHandler.List)
	})
}
