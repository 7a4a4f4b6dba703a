package errors

import (
	"encoding/json"
	"fmt"
	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
	"net/http"
	"strings"
)

type ErrorHandler struct {
	endpoint string
}

type jsonError struct {
	ErrorMsg string   `json:"error"`
	Fields   []string `json:"fields,omitempty"`
}

func NewErrorHandler(endpoint string) *ErrorHandler {
	return &ErrorHandler{endpoint}
}

// WriteAndLogError logs err and writes msg to the client. Server errors
// only expose msg; client errors also expose err.
func (eh *ErrorHandler) WriteAndLogError(
	w http.ResponseWriter,
	msg string,
	err error,
	statusCode int,
	fields log.Fields,
) {
	fields["endpoint"] = eh.endpoint
	logErr := fmt.Errorf("%s: %w", msg, err)
	responseErr := ""
	if statusCode >= 500 {
		log.WithFields(fields).Error(logErr)
		responseErr = msg
	} else {
		log.WithFields(fields).Debug(logErr)
		responseErr = logErr.Error()
	}
	eh.writeErrorMsg(w, jsonError{ErrorMsg: responseErr}, statusCode)
}

// WriteAndLogErrorMsg writes msg as is. It is used for messages meant to be
// shown to the user.
func (eh *ErrorHandler) WriteAndLogErrorMsg(
	w http.ResponseWriter,
	msg string,
	statusCode int,
	fields log.Fields,
) {
	fields["endpoint"] = eh.endpoint
	if statusCode >= 500 {
		log.WithFields(fields).Error(msg)
	} else {
		log.WithFields(fields).Debug(msg)
	}
	eh.writeErrorMsg(w, jsonError{ErrorMsg: msg}, statusCode)
}

func (eh *ErrorHandler) WriteAndLogValidationErrors(
	w http.ResponseWriter,
	err validator.ValidationErrors,
	fields log.Fields,
) {
	fields["endpoint"] = eh.endpoint
	invalid := make([]string, 0, len(err))
	for _, fieldErr := range err {
		invalid = append(invalid, fmt.Sprintf("%s: %s", fieldErr.Field(), fieldErr.Tag()))
	}
	log.WithFields(fields).Debugf("validation error: %s", strings.Join(invalid, ", "))
	eh.writeErrorMsg(w, jsonError{ErrorMsg: "validation error", Fields: invalid}, http.StatusBadRequest)
}

func (eh *ErrorHandler) writeErrorMsg(w http.ResponseWriter, body jsonError, statusCode int) {
	resp, _ := json.Marshal(body)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(resp)
}
