package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"clientdesk.org/internal/audit"
	"clientdesk.org/internal/customer"
)

func (a *API) handleCustomersCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listCustomers(w, r)
	case http.MethodPost:
		a.createCustomer(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleCustomerResource serves /{id} requests under the given route prefix;
// the same handler backs both the plain and the management namespaces.
func (a *API) handleCustomerResource(prefix string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, prefix)
		path = strings.Trim(path, "/")
		if path == "" || strings.Contains(path, "/") {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		id, err := strconv.ParseInt(path, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, r, http.StatusBadRequest, "customer id must be a positive integer")
			return
		}

		switch r.Method {
		case http.MethodGet:
			a.getCustomer(w, r, id)
		case http.MethodPut:
			a.updateCustomer(w, r, id)
		case http.MethodDelete:
			a.deleteCustomer(w, r, id)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
		}
	}
}

func (a *API) listCustomers(w http.ResponseWriter, r *http.Request) {
	items, err := a.customers.List(r.Context())
	if err != nil {
		handleCustomerError(w, r, err)
		return
	}
	if items == nil {
		items = []customer.Customer{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) getCustomer(w http.ResponseWriter, r *http.Request, id int64) {
	c, err := a.customers.Get(r.Context(), id)
	if err != nil {
		handleCustomerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) createCustomer(w http.ResponseWriter, r *http.Request) {
	var in customer.Input
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	c, err := a.customers.Create(r.Context(), in)
	if err != nil {
		handleCustomerError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "customer.create", map[string]any{
		"customer_id": c.ID,
	})
	w.Header().Set("Location", fmt.Sprintf("/api/v1/customers/%d", c.ID))
	writeJSON(w, http.StatusCreated, c)
}

func (a *API) updateCustomer(w http.ResponseWriter, r *http.Request, id int64) {
	var in customer.Input
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	c, err := a.customers.Update(r.Context(), id, in)
	if err != nil {
		handleCustomerError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "customer.update", map[string]any{
		"customer_id": c.ID,
	})
	writeJSON(w, http.StatusOK, c)
}

func (a *API) deleteCustomer(w http.ResponseWriter, r *http.Request, id int64) {
	if err := a.customers.Delete(r.Context(), id); err != nil {
		handleCustomerError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "customer.delete", map[string]any{
		"customer_id": id,
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

func handleCustomerError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, customer.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, customer.ErrDuplicateEmail):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, customer.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "customer not found")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// decodeJSON parses the request body. The body size cap comes from the
// MaxBodyBytes middleware, which wraps the body before any handler runs.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
