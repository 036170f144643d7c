package api

import (
	"database/sql"
	"net/http"
	"strings"

	"github.com/vodalab/vzorec/internal/blob"
	"github.com/vodalab/vzorec/internal/coc"
	"github.com/vodalab/vzorec/internal/metrics"
	"github.com/vodalab/vzorec/internal/model"
)

// NewRouter creates the API router with all endpoints registered.
func NewRouter(db *sql.DB, jwtSecret string, svc *coc.Service, blobs blob.Store) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: db, JWTSecret: jwtSecret}
	usersHandler := &UsersHandler{DB: db}
	agenciesHandler := &AgenciesHandler{DB: db}
	samplesHandler := &SamplesHandler{DB: db, COC: svc}
	transfersHandler := &TransfersHandler{COC: svc}

	authMW := AuthMiddleware(jwtSecret, db)
	requireLabAdmin := RequireRole(model.RoleLabAdmin)

	// Public: login.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)

	// Authenticated routes.
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))

	// Users (lab admin only).
	mux.Handle("GET /api/users", authMW(requireLabAdmin(http.HandlerFunc(usersHandler.List))))
	mux.Handle("POST /api/users", authMW(requireLabAdmin(http.HandlerFunc(usersHandler.Create))))
	mux.Handle("DELETE /api/users/{id}", authMW(requireLabAdmin(http.HandlerFunc(usersHandler.Delete))))

	// Agencies and test types: read (all roles), write (lab admin).
	mux.Handle("GET /api/agencies", authMW(http.HandlerFunc(agenciesHandler.List)))
	mux.Handle("POST /api/agencies", authMW(requireLabAdmin(http.HandlerFunc(agenciesHandler.Create))))
	mux.Handle("GET /api/testtypes", authMW(http.HandlerFunc(agenciesHandler.ListTestTypes)))
	mux.Handle("POST /api/testtypes", authMW(requireLabAdmin(http.HandlerFunc(agenciesHandler.CreateTestType))))

	// Samples.
	mux.Handle("GET /api/samples", authMW(http.HandlerFunc(samplesHandler.List)))
	mux.Handle("POST /api/samples", authMW(http.HandlerFunc(samplesHandler.Create)))
	mux.Handle("GET /api/samples/{id}", authMW(http.HandlerFunc(samplesHandler.Get)))
	mux.Handle("DELETE /api/samples/{id}", authMW(requireLabAdmin(http.HandlerFunc(samplesHandler.Delete))))
	mux.Handle("POST /api/samples/{id}/resubmit", authMW(requireLabAdmin(http.HandlerFunc(samplesHandler.Resubmit))))
	mux.Handle("GET /api/samples/{id}/history", authMW(http.HandlerFunc(samplesHandler.History)))

	// Custody transfers.
	mux.Handle("POST /api/transfers", authMW(http.HandlerFunc(transfersHandler.Create)))
	mux.Handle("POST /api/transfers/bulk", authMW(http.HandlerFunc(transfersHandler.BulkCreate)))

	// Chain photos, served directly when the blob driver has no public URL
	// of its own (filesystem and memory drivers).
	if blobs != nil && blobs.Driver() != blob.DriverS3 {
		mux.Handle("GET /blobs/{key...}", authMW(blobHandler(blobs)))
	}

	mux.Handle("GET /metrics", metrics.Handler())

	return mux
}

func blobHandler(blobs blob.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.PathValue("key"), "/")
		data, contentType, err := blobs.Get(r.Context(), key)
		if err != nil {
			jsonError(w, http.StatusNotFound, "not found")
			return
		}
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.Write(data)
	})
}
