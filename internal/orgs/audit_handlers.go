package orgs

import (
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opsdesk/opsdesk/internal/access"
	"github.com/opsdesk/opsdesk/internal/apperrors"
	"github.com/opsdesk/opsdesk/internal/audit"
	"github.com/rs/zerolog/log"
)

// HandleListAudit handles GET /api/v1/orgs/{org_id}/audit?category=&actor=&before=&limit=
func HandleListAudit(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		session := access.FromContext(ctx)

		filter, err := audit.ParseListFilter(r.URL.Query())
		if err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}

		reader := audit.NewReader(pool)
		events, err := reader.List(ctx, session.OrgID(), filter)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list audit log")
			apperrors.WriteInternalError(w, r, "Failed to list audit log")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"events": events,
		})
	}
}
