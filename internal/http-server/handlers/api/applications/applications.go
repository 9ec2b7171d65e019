package applications

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
	"github.com/quangvo5803/HomeCareDN-sub005/internal/models/application"
	"github.com/quangvo5803/HomeCareDN-sub005/internal/models/request"
	"github.com/quangvo5803/HomeCareDN-sub005/internal/notify"
	"github.com/quangvo5803/HomeCareDN-sub005/internal/storage/postgres"
)

var validate = validator.New()

type ApplicationSaver interface {
	SaveApplication(app application.CreateApplication) (application.Application, error)
}

type MyApplicationsReader interface {
	ReadMyApplications(kind request.Kind, bidderId string, limit, offset int) ([]application.Application, error)
}

type RequestApplicationsReader interface {
	ReadRequestApplications(kind request.Kind, requestId string, limit, offset int) ([]application.Application, error)
}

type ApplicationStatusReader interface {
	ReadApplicationStatus(kind request.Kind, applicationId string) (application.Status, error)
}

type DecisionSubmitter interface {
	SubmitDecision(kind request.Kind, applicationId, customerId string, decision application.Decision) (application.Application, error)
}

func NewPostApplication(log *slog.Logger, applicationSaver ApplicationSaver, publisher notify.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req application.CreateApplication

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

		resp, err := applicationSaver.SaveApplication(req)
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

		if publisher != nil {
			if err := publisher.Publish(notify.KindApplicationSubmitted, notify.ApplicationEvent{
				ApplicationId: resp.Id,
				RequestId:     resp.RequestId,
				BidderId:      resp.BidderId,
			}); err != nil {
				log.Warn("failed to publish change event", slog.String("error", err.Error()))
			}
		}

		render.JSON(w, r, resp)
	}
}

func NewGetMyApplications(log *slog.Logger, myApplicationsReader MyApplicationsReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind := request.Kind(r.URL.Query().Get("kind"))
		if !request.ValidKind(kind) {
			render.Status(r, 400)
			render.JSON(w, r, errors.NewHttpError("The request kind is wrong"))
			return
		}
		bidderId := r.URL.Query().Get("bidderId")
		if bidderId == "" {
			render.Status(r, 401)
			render.JSON(w, r, errors.NewHttpError("The bidderId is empty"))
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

		resp, err := myApplicationsReader.ReadMyApplications(kind, bidderId, limit, offset)
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

func NewGetRequestApplications(log *slog.Logger, requestApplicationsReader RequestApplicationsReader) http.HandlerFunc {
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

		resp, err := requestApplicationsReader.ReadRequestApplications(kind, requestId, limit, offset)
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

func NewGetApplicationStatus(log *slog.Logger, applicationStatusReader ApplicationStatusReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		applicationId := chi.URLParam(r, "applicationId")
		if applicationId == "" {
			render.Status(r, 400)
			render.JSON(w, r, errors.NewHttpError("The application id is invalid"))
			return
		}
		kind := request.Kind(r.URL.Query().Get("kind"))
		if !request.ValidKind(kind) {
			render.Status(r, 400)
			render.JSON(w, r, errors.NewHttpError("The request kind is wrong"))
			return
		}

		resp, err := applicationStatusReader.ReadApplicationStatus(kind, applicationId)
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

func NewPutApplicationDecision(log *slog.Logger, decisionSubmitter DecisionSubmitter, publisher notify.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		applicationId := chi.URLParam(r, "applicationId")
		if applicationId == "" {
			render.Status(r, 400)
			render.JSON(w, r, errors.NewHttpError("The application id is invalid"))
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
		decision := application.Decision(r.URL.Query().Get("decision"))
		if !application.ValidDecision(decision) {
			render.Status(r, 400)
			render.JSON(w, r, errors.NewHttpError("The decision is wrong"))
			return
		}

		resp, err := decisionSubmitter.SubmitDecision(kind, applicationId, customerId, decision)
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

		if publisher != nil {
			eventKind := notify.KindApplicationRejected
			if decision == application.DecisionApproved {
				eventKind = notify.KindApplicationApproved
			}
			if err := publisher.Publish(eventKind, notify.ApplicationEvent{
				ApplicationId: resp.Id,
				RequestId:     resp.RequestId,
				BidderId:      resp.BidderId,
			}); err != nil {
				log.Warn("failed to publish change event", slog.String("error", err.Error()))
			}
		}

		render.JSON(w, r, resp)
	}
}
