package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/turtacn/FCE-Intelligence/internal/domain/citation"
	"github.com/turtacn/FCE-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FCE-Intelligence/pkg/errors"
)

// CitationHandler exposes the reference literature behind each test.
type CitationHandler struct {
	resolver citation.Resolver
	logger   logging.Logger
}

func NewCitationHandler(resolver citation.Resolver, logger logging.Logger) *CitationHandler {
	if resolver == nil {
		panic("nil citation.Resolver injected into CitationHandler")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &CitationHandler{resolver: resolver, logger: logger.Named("citations")}
}

// CitationView is a citation plus its rendered bibliography line.
type CitationView struct {
	*citation.Citation
	Text string `json:"text"`
}

type CitationsResponse struct {
	TestID    string         `json:"testId"`
	Citations []CitationView `json:"citations"`
}

// ForTest handles GET /api/v1/citations/{testID}. Unknown tests have no
// citations and answer 200 with an empty list.
func (h *CitationHandler) ForTest(w http.ResponseWriter, r *http.Request) {
	testID := strings.TrimSpace(chi.URLParam(r, "testID"))
	if testID == "" {
		writeAppError(w, h.logger, errors.InvalidParam("test id is required"))
		return
	}

	cits, err := h.resolver.Resolve(r.Context(), testID)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	resp := CitationsResponse{TestID: testID, Citations: make([]CitationView, 0, len(cits))}
	for _, c := range cits {
		resp.Citations = append(resp.Citations, CitationView{Citation: c, Text: c.String()})
	}
	writeJSON(w, http.StatusOK, resp)
}
