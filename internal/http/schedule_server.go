package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"mime"
	"net/http"
	"resume-scheduler/internal/action"
	"resume-scheduler/internal/clock"
	"resume-scheduler/internal/hh"
	"resume-scheduler/internal/http/constants"
	herrors "resume-scheduler/internal/http/errors"
	"resume-scheduler/internal/http/validation"
	"resume-scheduler/internal/model"
	"resume-scheduler/internal/schedule"
	"time"
)

// Resumes is the part of the HeadHunter client the server needs.
type Resumes interface {
	Resumes(ctx context.Context, owner string) ([]hh.Resume, error)
	AuthCodeURL(owner string) string
	ValidState(owner, state string) bool
	Authorize(ctx context.Context, owner, code string) error
}

type scheduleServer struct {
	manager  *schedule.Manager
	users    model.UserStorage
	resumes  Resumes
	validate *validator.Validate
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	js, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "error forming response data", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(js)
}

var (
	scheduleUpdatesErrorHandler = herrors.NewErrorHandler("ScheduleUpdates")
	disableUpdatesErrorHandler  = herrors.NewErrorHandler("DisableUpdates")
	scheduleTimesErrorHandler   = herrors.NewErrorHandler("ScheduleTimes")
	resumesErrorHandler         = herrors.NewErrorHandler("Resumes")
	connectErrorHandler         = herrors.NewErrorHandler("Connect")
	authErrorHandler            = herrors.NewErrorHandler("Auth")
)

type scheduleRequest struct {
	Times    string `json:"times" validate:"required"`
	Timezone string `json:"timezone" validate:"omitempty,ianaZone"`
}

type scheduleResponse struct {
	Scheduled int    `json:"scheduled"`
	Times     string `json:"times"`
	Timezone  string `json:"timezone"`
}

type deletedResponse struct {
	Deleted int64 `json:"deleted"`
}

type timesResponse struct {
	Times []time.Time `json:"times"`
}

type resumeResponse struct {
	hh.Resume
	NextUpdates []time.Time `json:"nextUpdates"`
}

func (ss *scheduleServer) scheduleUpdatesHandler(w http.ResponseWriter, req *http.Request) {
	owner, target := mux.Vars(req)["owner"], mux.Vars(req)["target"]
	fields := log.Fields{"owner": owner, "target": target}

	contentType := req.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		scheduleUpdatesErrorHandler.WriteAndLogError(w, "failed to parse media type", err, http.StatusBadRequest, fields)
		return
	}
	if mediaType != "application/json" {
		scheduleUpdatesErrorHandler.WriteAndLogErrorMsg(w, "expect application/json Content-Type", http.StatusUnsupportedMediaType, fields)
		return
	}
	dec := json.NewDecoder(req.Body)
	dec.DisallowUnknownFields()
	sr := scheduleRequest{}
	if err = dec.Decode(&sr); err != nil {
		scheduleUpdatesErrorHandler.WriteAndLogError(w, "failed to parse request body", err, http.StatusBadRequest, fields)
		return
	}

	if err = ss.validate.StructCtx(req.Context(), sr); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			scheduleUpdatesErrorHandler.WriteAndLogValidationErrors(w, validationErrs, fields)
		} else {
			scheduleUpdatesErrorHandler.WriteAndLogError(w, "failed to validate request", err, http.StatusBadRequest, fields)
		}
		return
	}

	times, err := clock.ParseTimeSet(sr.Times)
	if err != nil {
		var formatErr *clock.FormatError
		if errors.As(err, &formatErr) {
			fields["kind"] = formatErr.Kind
			scheduleUpdatesErrorHandler.WriteAndLogErrorMsg(w, formatErr.Message(), http.StatusBadRequest, fields)
			return
		}
		scheduleUpdatesErrorHandler.WriteAndLogError(w, "failed to parse times", err, http.StatusBadRequest, fields)
		return
	}

	timeoutCtx, cancel := context.WithTimeout(req.Context(), constants.StorageOperationTimeout)
	defer cancel()
	timezone, err := ss.timezone(timeoutCtx, owner, sr.Timezone)
	if err != nil {
		scheduleUpdatesErrorHandler.WriteAndLogError(w, "failed to resolve user timezone", err, http.StatusInternalServerError, fields)
		return
	}

	count, err := ss.manager.ScheduleUpdates(timeoutCtx, owner, target, times, timezone)
	if err != nil {
		scheduleUpdatesErrorHandler.WriteAndLogError(w, "failed to schedule updates, previous schedule is kept", err, http.StatusInternalServerError, fields)
		return
	}
	if sr.Timezone != "" {
		if err = ss.users.SetTimezone(timeoutCtx, owner, timezone); err != nil {
			log.WithFields(fields).WithField("error", err).Warn("Failed saving user timezone")
		}
	}
	writeJSON(w, scheduleResponse{count, clock.JoinTimes(times), timezone})
}

// timezone returns requested, or the user's stored timezone when nothing was
// requested.
func (ss *scheduleServer) timezone(ctx context.Context, owner, requested string) (string, error) {
	if requested != "" {
		return requested, nil
	}
	user, err := ss.users.GetUser(ctx, owner)
	if errors.Is(err, model.ErrorNotFound) || (err == nil && user.Timezone == "") {
		return model.DefaultTimezone, nil
	}
	if err != nil {
		return "", err
	}
	return user.Timezone, nil
}

func (ss *scheduleServer) disableUpdatesHandler(w http.ResponseWriter, req *http.Request) {
	owner, target := mux.Vars(req)["owner"], mux.Vars(req)["target"]
	timeoutCtx, cancel := context.WithTimeout(req.Context(), constants.StorageOperationTimeout)
	defer cancel()

	deleted, err := ss.manager.DisableUpdates(timeoutCtx, owner, target)
	if err != nil {
		disableUpdatesErrorHandler.WriteAndLogError(
			w,
			fmt.Sprintf("failed to disable updates of %s", target),
			err,
			http.StatusInternalServerError,
			log.Fields{"owner": owner, "target": target},
		)
		return
	}
	writeJSON(w, deletedResponse{deleted})
}

func (ss *scheduleServer) scheduleTimesHandler(w http.ResponseWriter, req *http.Request) {
	target := mux.Vars(req)["target"]
	timeoutCtx, cancel := context.WithTimeout(req.Context(), constants.StorageOperationTimeout)
	defer cancel()

	times, err := ss.collectTimes(timeoutCtx, target)
	if err != nil {
		scheduleTimesErrorHandler.WriteAndLogError(
			w,
			fmt.Sprintf("failed to get schedule of %s", target),
			err,
			http.StatusInternalServerError,
			log.Fields{"target": target},
		)
		return
	}
	writeJSON(w, timesResponse{times})
}

func (ss *scheduleServer) collectTimes(ctx context.Context, target string) ([]time.Time, error) {
	times := make([]time.Time, 0)
	for fireAt, err := range ss.manager.ScheduleTimes(ctx, target) {
		if err != nil {
			return nil, err
		}
		times = append(times, fireAt)
	}
	return times, nil
}

func (ss *scheduleServer) resumesHandler(w http.ResponseWriter, req *http.Request) {
	owner := mux.Vars(req)["owner"]
	fields := log.Fields{"owner": owner}
	timeoutCtx, cancel := context.WithTimeout(req.Context(), constants.RemoteOperationTimeout)
	defer cancel()

	resumes, err := ss.resumes.Resumes(timeoutCtx, owner)
	if err != nil {
		category := action.Classify(err)
		statusCode := http.StatusBadGateway
		if category == action.Unauthorized {
			statusCode = http.StatusForbidden
		}
		fields["error"] = err
		resumesErrorHandler.WriteAndLogErrorMsg(w, action.Message(category), statusCode, fields)
		return
	}

	response := make([]resumeResponse, 0, len(resumes))
	for _, resume := range resumes {
		times, err := ss.collectTimes(timeoutCtx, resume.Id)
		if err != nil {
			resumesErrorHandler.WriteAndLogError(w, "failed to get resume schedules", err, http.StatusInternalServerError, fields)
			return
		}
		response = append(response, resumeResponse{resume, times})
	}
	writeJSON(w, response)
}

func (ss *scheduleServer) connectHandler(w http.ResponseWriter, req *http.Request) {
	owner := mux.Vars(req)["owner"]
	writeJSON(w, map[string]string{"url": ss.resumes.AuthCodeURL(owner)})
}

func (ss *scheduleServer) authHandler(w http.ResponseWriter, req *http.Request) {
	query := req.URL.Query()
	owner, code, state := query.Get("user"), query.Get("code"), query.Get("state")
	fields := log.Fields{"owner": owner}

	if !ss.resumes.ValidState(owner, state) {
		authErrorHandler.WriteAndLogErrorMsg(w, "invalid link, request a new one", http.StatusBadRequest, fields)
		return
	}
	if authErr := query.Get("error"); authErr != "" {
		authErrorHandler.WriteAndLogErrorMsg(w, fmt.Sprintf("authorization was not granted: %s", authErr), http.StatusForbidden, fields)
		return
	}

	timeoutCtx, cancel := context.WithTimeout(req.Context(), constants.RemoteOperationTimeout)
	defer cancel()
	if err := ss.resumes.Authorize(timeoutCtx, owner, code); err != nil {
		authErrorHandler.WriteAndLogError(w, "authorization failed, try again", err, http.StatusBadGateway, fields)
		return
	}
	writeJSON(w, map[string]string{"status": "authorized"})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Infof("%s %s", r.Method, r.RequestURI)
		next.ServeHTTP(w, r)
	})
}

// NewScheduleServer builds the REST server. resumes may be nil, in which
// case the HeadHunter endpoints are not registered.
func NewScheduleServer(manager *schedule.Manager, users model.UserStorage, resumes Resumes, addr string) (*http.Server, error) {
	server := scheduleServer{manager, users, resumes, validator.New()}
	if err := validation.RegisterScheduleValidation(server.validate); err != nil {
		return nil, fmt.Errorf("error registering schedule validation: %w", err)
	}

	router := mux.NewRouter()
	router.StrictSlash(true)
	router.HandleFunc("/api/v1/schedules/{owner}/{target}/", server.scheduleUpdatesHandler).Methods("PUT")
	router.HandleFunc("/api/v1/schedules/{owner}/{target}/", server.disableUpdatesHandler).Methods("DELETE")
	router.HandleFunc("/api/v1/schedules/{target}/", server.scheduleTimesHandler).Methods("GET")
	if resumes != nil {
		router.HandleFunc("/api/v1/users/{owner}/resumes/", server.resumesHandler).Methods("GET")
		router.HandleFunc("/api/v1/users/{owner}/connect/", server.connectHandler).Methods("GET")
		router.HandleFunc("/auth/", server.authHandler).Methods("GET")
	}
	router.Use(loggingMiddleware)
	return &http.Server{Addr: addr, Handler: router}, nil
}
