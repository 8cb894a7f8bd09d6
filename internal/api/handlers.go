package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"recolha/internal/domain"
	"recolha/internal/export"
	"recolha/internal/models"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *HTTPServer) handleBook(w http.ResponseWriter, r *http.Request) {
	req, err := decodeBooking(s.validate, r.Body)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	date, slot, items, err := req.toDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	token, err := s.service.Book(r.Context(), date, &slot, items, req.Municipality)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, bookingResponse{Token: token, Message: "Booking created successfully"})
}

func (s *HTTPServer) handleCheck(w http.ResponseWriter, r *http.Request) {
	booking, err := s.service.Check(r.Context(), r.PathValue("token"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if booking == nil {
		writeError(w, http.StatusNotFound, "booking not found")
		return
	}
	writeJSON(w, http.StatusOK, booking.Snapshot())
}

func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	ok, err := s.service.Cancel(r.Context(), r.PathValue("token"))
	s.writeTransition(w, ok, err)
}

func (s *HTTPServer) handleRemove(w http.ResponseWriter, r *http.Request) {
	ok, err := s.service.Remove(r.Context(), r.PathValue("token"))
	s.writeTransition(w, ok, err)
}

// handleChangeState defaults to ASSIGNED when the body or its state is absent.
func (s *HTTPServer) handleChangeState(w http.ResponseWriter, r *http.Request) {
	var req stateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, errInvalidBody.Error())
		return
	}

	status := models.StatusAssigned
	if strings.TrimSpace(req.State) != "" {
		parsed, err := models.ParseBookingStatus(req.State)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		status = parsed
	}

	ok, err := s.service.ChangeState(r.Context(), r.PathValue("token"), status)
	s.writeTransition(w, ok, err)
}

func (s *HTTPServer) handleByState(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("state")
	status, err := models.ParseBookingStatus(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid state: "+raw)
		return
	}
	bookings, err := s.service.GetBookingsByStatus(r.Context(), status)
	s.writeBookings(w, bookings, err)
}

func (s *HTTPServer) handleAll(w http.ResponseWriter, r *http.Request) {
	bookings, err := s.service.GetAllBookings(r.Context())
	s.writeBookings(w, bookings, err)
}

func (s *HTTPServer) handleByMunicipality(w http.ResponseWriter, r *http.Request) {
	bookings, err := s.service.GetBookingsByMunicipality(r.Context(), r.PathValue("name"))
	s.writeBookings(w, bookings, err)
}

func (s *HTTPServer) handleMunicipalities(w http.ResponseWriter, r *http.Request) {
	names := s.directory.ListAll(r.Context())
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	bookings, err := s.service.GetAllBookings(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteBookings(&buf, bookings); err != nil {
		s.logger.Error().Err(err).Msg("export bookings error")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="bookings.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			s.logger.Warn().Err(err).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeTransition maps a refused transition or unknown token to 404.
func (s *HTTPServer) writeTransition(w http.ResponseWriter, ok bool, err error) {
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "booking not found or transition not allowed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) writeBookings(w http.ResponseWriter, bookings []*models.Booking, err error) {
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	out := make([]models.BookingSnapshot, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, b.Snapshot())
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errInvalidBody):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrValidation):
		writeError(w, http.StatusBadRequest, validationReason(err))
	case errors.Is(err, domain.ErrCapacityExceeded):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrServiceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
	default:
		s.logger.Error().Err(err).Msg("unexpected handler error")
		writeError(w, http.StatusInternalServerError, "an unexpected error occurred")
	}
}

// validationReason strips the generic prefix added by decodeBooking.
func validationReason(err error) string {
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		return verr.Reason
	}
	return strings.TrimPrefix(err.Error(), models.ErrValidation.Error()+": ")
}
