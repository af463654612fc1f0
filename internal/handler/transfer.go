package handler

import (
	"log"
	"net/http"

	"rwsplit/internal/codec"
)

const maxImportBytes = 10 << 20

// ImportResponse is the body of a successful import
type ImportResponse struct {
	Imported int `json:"imported"`
}

// ImportAccounts bulk-creates accounts from a YAML or JSON document
func (h *AccountHandler) ImportAccounts(w http.ResponseWriter, r *http.Request) {
	c, err := codec.ForFormat(r.PathValue("format"))
	if err != nil {
		writeError(w, "Unsupported format", err.Error(), http.StatusBadRequest)
		return
	}

	accounts, err := c.Parse(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		writeError(w, "Invalid "+c.Format()+" document", err.Error(), http.StatusBadRequest)
		return
	}

	n, err := h.svc.ImportAccounts(r.Context(), accounts)
	if err != nil {
		writeServiceError(w, "Failed to import accounts", err)
		return
	}

	log.Printf("Imported %d accounts from %s", n, c.Format())
	writeJSON(w, ImportResponse{Imported: n}, http.StatusCreated)
}

// ExportAccounts writes every account as a YAML or JSON document
func (h *AccountHandler) ExportAccounts(w http.ResponseWriter, r *http.Request) {
	c, err := codec.ForFormat(r.PathValue("format"))
	if err != nil {
		writeError(w, "Unsupported format", err.Error(), http.StatusBadRequest)
		return
	}

	accounts, err := h.svc.ExportAccounts(r.Context(), consistent(r))
	if err != nil {
		writeServiceError(w, "Failed to export accounts", err)
		return
	}

	contentType := "application/json"
	if c.Format() == "yaml" {
		contentType = "application/yaml"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename=accounts."+c.Format())
	if err := c.Export(accounts, w); err != nil {
		// Headers are already sent.
		log.Printf("Failed to export accounts: %v", err)
	}
}
