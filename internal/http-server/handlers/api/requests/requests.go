package requests

import (
	"encoding/json"
	serrors "errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/quangvo5803/HomeCareDN-sub005/internal/lib/errors"
	"github.com/quangvo5803/HomeCareDN-sub005/internal/models/request"
	"github.com/quangvo5803/HomeCareDN-sub005/internal/storage/postgres"
)

var validate = validator.New()

type RequestSaver interface {
	SaveRequest(req request.CreateRequest) (request.Request, error)
}

type RequestsReader interface {
	ReadRequests(kind request.Kind, limit, offset int) ([]request.Request, error)
}

type MyRequestsReader interface {
	ReadMyRequests(kind request.Kind, customerId string, limit, offset int) ([]request.Request, error)
}

type RequestStatusReader interface {
	ReadRequestStatus(kind request.Kind, requestId string) (request.Status, error)
}

type RequestStatusUpdater interface {
	UpdateRequestStatus(kind request.Kind, requestId, customerId string, status request.Status) (request.Request, error)
}

func NewPostRequest(log *slog.Logger, requestSaver RequestSaver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req request.CreateRequest

		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()

		err := decoder.Decode(&req)
		if err != nil {
			log.Error("Error decoding request body")
			render.Status(r, 400)
			render.JSON(w, r, errors.NewHttpError("Error decoding request body"))
			return
		}

		if err := validate.Struct(req); err != nil {
			log.Error(err.Error())
			render.Status(r, 400)
			render.JSON(w, r, errors.NewHttpError(err.Error()))
			return
		}
		if !request.ValidKind(req.Kind) {
			render.Status(r, 400)
			render.JSON(w, r, errors.NewHttpError("The request kind is wrong"))
			return
		}

		resp, err := requestSaver.SaveRequest(req)
		if err != nil {
			switch {
			case serrors.Is(err, postgres.ErrBadRequest):
				render.Status(r, 400)
			case serrors.Is(err, postgres.ErrUserNotFound):
				render.Status(r, 401)
			case serrors.Is(err, postgres.ErrForbidden):
				render.Status(r, 403)
			case serrors.Is(err, postgres.ErrNotFound):
				render.Status(r, 404)
			default:
				render.Status(r, 400)
			}
			render.JSON(w, r, errors.NewHttpError(err.Error()))
			return
		}

		render.JSON(w, r, resp)
	}
}

func NewGetRequests(log *slog.Logger, requestsReader RequestsReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind := request.Kind(r.URL.Query().Get("kind"))
		if !request.ValidKind(kind) {
			render.Status(r, 400)
			render.JSON(w, r, errors.NewHttpError("The request kind is wrong"))
			return
		}

		var limit, offset int
		var err error
		if r.URL.Query().Get("limit") == "" {
			limit = 5
		} else {
			limit, err = strconv.Atoi(r.URL.Query().Get("limit"))
			if err != nil {
				log.Error("Incorrect limit value")
				render.Status(r, 400)
				render.JSON(w, r, errors.NewHttpError("Incorrect limit value"))
				return
			}
		}
		if r.URL.Query().Get("offset") == "" {
			offset = 0
		} else {
			offset, err = strconv.Atoi(r.URL.Query().Get("offset"))
			if err != nil {
				log.Error("Incorrect offset value")
				render.Status(r, 400)
				render.JSON(w, r, errors.NewHttpError("Incorrect offset value"))
				return
			}
		}

		resp, err := requestsReader.ReadRequests(kind, limit, offset)
		if err != nil {
			log.Error("Failed to read requests", slog.Attr{Key: "error", Value: slog.StringValue(err.Error())})
			render.Status(r, 500)
			render.JSON(w, r, errors.NewHttpError(err.Error()))
			return
		}

		render.JSON(w, r, resp)
	}
}

func NewGetMyRequests(log *slog.Logger, myRequestsReader MyRequestsReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind := request.Kind(r.URL.Query().Get("kind"))
		if !request.ValidKind(kind) {
			render.Status(r, 400)
			render.JSON(w, r, errors.NewHttpError("The request kind is wrong"))
			return
		}
		customerId := r.URL.Query().Get("customerId")
		if customerId == "" {
			render.Status(r, 401)
			render.JSON(w, r, errors.NewHttpError("The customerId is empty"))
			return
		}

		var limit, offset int
		var err error
		if r.URL.Query().Get("limit") == "" {
			limit = 5
		} else {
			limit, err = strconv.Atoi(r.URL.Query().Get("limit"))
			if err != nil {
				log.Error("Incorrect limit value")
				render.Status(r, 400)
				render.JSON(w, r, errors.NewHttpError("Incorrect limit value"))
				return
			}
		}
		if r.URL.Query().Get("offset") == "" {
			offset = 0
		} else {
			offset, err = strconv.Atoi(r.URL.Query().Get("offset"))
			if err != nil {
				log.Error("Incorrect offset value")
				render.Status(r, 400)
				render.JSON(w, r, errors.NewHttpError("Incorrect offset value"))
				return
			}
		}

		resp, err := myRequestsReader.ReadMyRequests(kind, customerId, limit, offset)
		if err != nil {
			switch {
			case serrors.Is(err, postgres.ErrBadRequest):
				render.Status(r, 400)
			case serrors.Is(err, postgres.ErrUserNotFound):
				render.Status(r, 401)
			case serrors.Is(err, postgres.ErrForbidden):
				render.Status(r, 403)
			case serrors.Is(err, postgres.ErrNotFound):
				render.Status(r, 404)
			default:
				render.Status(r, 400)
			}
			render.JSON(w, r, errors.NewHttpError(err.Error()))
			return
		}

		render.JSON(w, r, resp)
	}
}

func NewGetRequestStatus(log *slog.Logger, requestStatusReader RequestStatusReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestId := chi.URLParam(r, "requestId")
		if requestId == "" {
			render.Status(r, 400)
			render.JSON(w, r, errors.NewHttpError("The request id is invalid"))
			return
		}
		kind := request.Kind(r.URL.Query().Get("kind"))
		if !request.ValidKind(kind) {
			render.Status(r, 400)
			render.JSON(w, r, errors.NewHttpError("The request kind is wrong"))
			return
		}

		resp, err := requestStatusReader.ReadRequestStatus(kind, requestId)
		if err != nil {
			switch {
			case serrors.Is(err, postgres.ErrBadRequest):
				render.Status(r, 400)
			case serrors.Is(err, postgres.ErrUserNotFound):
				render.Status(r, 401)
			case serrors.Is(err, postgres.ErrForbidden):
				render.Status(r, 403)
			case serrors.Is(err, postgres.ErrNotFound):
				render.Status(r, 404)
			default:
				render.Status(r, 400)
			}
			render.JSON(w, r, errors.NewHttpError(err.Error()))
			return
		}

		render.JSON(w, r, resp)
	}
}

func NewPutRequestStatus(log *slog.Logger, requestStatusUpdater RequestStatusUpdater) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestId := chi.URLParam(r, "requestId")
		if requestId == "" {
			render.Status(r, 400)
			render.JSON(w, r, errors.NewHttpError("The request id is invalid"))
			return
		}
		kind := request.Kind(r.URL.Query().Get("kind"))
		if !request.ValidKind(kind) {
			render.Status(r, 400)
			render.JSON(w, r, errors.NewHttpError("The request kind is wrong"))
			return
		}
		customerId := r.URL.Query().Get("customerId")
		if customerId == "" {
			render.Status(r, 401)
			render.JSON(w, r, errors.NewHttpError("The customerId is empty"))
			return
		}
		status := request.Status(r.URL.Query().Get("status"))
		if !request.ValidStatus(status) {
			render.Status(r, 400)
			render.JSON(w, r, errors.NewHttpError("The status is wrong"))
			return
		}

		resp, err := requestStatusUpdater.UpdateRequestStatus(kind, requestId, customerId, status)
		if err != nil {
			switch {
			case serrors.Is(err, postgres.ErrBadRequest):
				render.Status(r, 400)
			case serrors.Is(err, postgres.ErrUserNotFound):
				render.Status(r, 401)
			case serrors.Is(err, postgres.ErrForbidden):
				render.Status(r, 403)
			case serrors.Is(err, postgres.ErrNotFound):
				render.Status(r, 404)
			default:
				render.Status(r, 400)
			}
			render.JSON(w, r, errors.NewHttpError(err.Error()))
			return
		}

		render.JSON(w, r, resp)
	}
}
