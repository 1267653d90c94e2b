package main

import (
	"context"
	"log"
	"net/http"
	"time"

	api "github.com/sepakat-app/sepakat/internal/api/http"
	"github.com/sepakat-app/sepakat/internal/assessment"
	auth "github.com/sepakat-app/sepakat/internal/auth/middleware"
	"github.com/sepakat-app/sepakat/internal/config"
	"github.com/sepakat-app/sepakat/internal/db"
	"github.com/sepakat-app/sepakat/internal/rbac"
	syncx "github.com/sepakat-app/sepakat/internal/sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func main() {
	cfg := config.FromEnv()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	store := assessment.NewSQLStore(dbh, cfg.DBDriver)
	events := syncx.NewEventRepo(dbh)
	workflow := assessment.NewWorkflow(store, store, assessment.WithEvents(events))

	authSvc := auth.NewAuthService(cfg.AuthSecret)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", auth.LoginHandler(authSvc, dbh))
	r.Post("/auth/admin/login", auth.AdminLoginHandler(authSvc, cfg.AdminUser, cfg.AdminPassHash))

	if cfg.EnableSeed {
		r.Get("/seed", api.SeedHandler(dbh))
	}

	// Protected API (JWT → subject+role in context → DB role override → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))
		pr.Use(auth.AttachRoleFromDB(dbh, false))

		// Admin: rubric templates
		pr.Route("/admin", func(ar chi.Router) {
			ar.With(rbac.Require("templates:manage")).Get("/templates", api.ListTemplatesHandler(store))
			ar.With(rbac.Require("templates:manage")).Post("/templates", api.CreateTemplateHandler(store))
			ar.With(rbac.Require("templates:manage")).Get("/templates/{templateID}", api.GetTemplateHandler(store))
			ar.With(rbac.Require("templates:manage")).Put("/templates/{templateID}", api.UpdateTemplateHandler(store))
			ar.With(rbac.Require("templates:manage")).Delete("/templates/{templateID}", api.DeleteTemplateHandler(store))

			// Weight matrices (grade bands)
			ar.With(rbac.Require("weights:manage")).Get("/weights", api.ListMatricesHandler(store))
			ar.With(rbac.Require("weights:manage")).Post("/weights", api.CreateMatrixHandler(store))
			ar.With(rbac.Require("weights:manage")).Put("/weights/{matrixID}", api.UpdateMatrixHandler(store))
			ar.With(rbac.Require("weights:manage")).Delete("/weights/{matrixID}", api.DeleteMatrixHandler(store))

			// Assignments
			ar.With(rbac.Require("assignments:manage")).Get("/assignments", api.ListAssignmentsHandler(store))
			ar.With(rbac.Require("assignments:manage")).Post("/assignments", api.CreateAssignmentHandler(store))
			ar.With(rbac.Require("assignments:manage")).Get("/assignments/export", api.ExportAssignmentsHandler(store, dbh))
			ar.With(rbac.Require("assignments:manage")).Get("/assignments/{assessmentID}/details", api.AssignmentDetailsHandler(store))
			ar.With(rbac.Require("assignments:manage")).Delete("/assignments/{assessmentID}", api.DeleteAssignmentHandler(store))
			ar.With(rbac.Require("assignments:manage")).Get("/assignments/{assessmentID}/print", api.PrintAssessmentHandler(store, dbh))

			// Users
			ar.With(rbac.Require("users:manage")).Post("/users/bulk", api.BulkUpsertUsersHandler(dbh))
			ar.With(rbac.Require("users:manage")).Get("/users", api.ListUsersHandler(dbh))
			ar.With(rbac.Require("users:manage")).Post("/users/{userID}/refresh-token", api.RefreshTokenHandler(dbh))
			ar.With(rbac.Require("users:manage")).Post("/users/refresh-all-tokens", api.RefreshAllTokensHandler(dbh))

			ar.With(rbac.Require("dashboard:view")).Get("/dashboard", api.AdminDashboardHandler(dbh))
		})

		// Reviewer cockpit
		pr.Route("/cockpit", func(cr chi.Router) {
			cr.With(rbac.Require("assessment:view")).Get("/", api.CockpitHandler(store))
			cr.With(rbac.Require("assessment:view")).Get("/assessment/{assessmentID}", api.AssessmentViewHandler(store))
			cr.With(rbac.Require("assessment:assign-peer")).Post("/assessment/{assessmentID}/assign-peer", api.AssignPeerHandler(workflow))
			cr.With(rbac.Require("assessment:assign-peer")).Post("/assessment/{assessmentID}/remove-peer", api.RemovePeerHandler(workflow))
			cr.With(rbac.Require("assessment:submit")).Post("/assessment/{assessmentID}/submit", api.SubmitHandler(workflow, store))
			cr.With(rbac.Require("assessment:validate")).Post("/assessment/{assessmentID}/validator-action", api.ValidatorActionHandler(workflow))
			cr.With(rbac.Require("assessment:testimony")).Post("/assessment/{assessmentID}/admin-peer-submit", api.AdminPeerSubmitHandler(workflow))
			cr.With(rbac.Require("assessment:print")).Get("/assessment/{assessmentID}/print", api.PrintAssessmentHandler(store, dbh))
		})
	})

	log.Printf("listening on %s", cfg.HTTPAddr)
	if err := http.ListenAndServe(cfg.HTTPAddr, r); err != nil {
		log.Fatal(err)
	}
}
