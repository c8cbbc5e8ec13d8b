package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
)

// TemplateError is returned when a unique ID template renders to nothing or cannot be evaluated.
type TemplateError struct {
	Template  string
	AccountID string
	Message   string
}

func NewTemplateError(template string, msg string) *TemplateError {
	return &TemplateError{
		Template: template,
		Message:  msg,
	}
}

func (e *TemplateError) Error() string {
	if e.AccountID != "" {
		return fmt.Sprintf("account '%s': template %q: %s", e.AccountID, e.Template, e.Message)
	}
	return fmt.Sprintf("template %q: %s", e.Template, e.Message)
}

func (e *TemplateError) AddAccount(accountID string) *TemplateError {
	e.AccountID = accountID
	return e
}

func (e *TemplateError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusUnprocessableEntity, e.Error()).AddMetaValue("template", e.Template).AddMetaValue("account_id", e.AccountID)
}

// ExhaustedCounterError is returned when every counter value up to the digit limit collides.
type ExhaustedCounterError struct {
	Candidate string
	MaxDigits int
	Attempts  int
	AccountID string
}

func NewExhaustedCounterError(candidate string, maxDigits, attempts int) *ExhaustedCounterError {
	return &ExhaustedCounterError{
		Candidate: candidate,
		MaxDigits: maxDigits,
		Attempts:  attempts,
	}
}

func (e *ExhaustedCounterError) Error() string {
	msg := fmt.Sprintf("unique id space exhausted for %q after %d attempts (%d digits)", e.Candidate, e.Attempts, e.MaxDigits)
	if e.AccountID != "" {
		return fmt.Sprintf("account '%s': %s", e.AccountID, msg)
	}
	return msg
}

func (e *ExhaustedCounterError) AddAccount(accountID string) *ExhaustedCounterError {
	e.AccountID = accountID
	return e
}

func (e *ExhaustedCounterError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusConflict, e.Error()).AddMetaValue("candidate", e.Candidate).AddMetaValue("max_digits", strconv.Itoa(e.MaxDigits))
}

// ConfigurationError reports a malformed fusion source setting. It aborts a whole pass.
type ConfigurationError struct {
	Field   string
	Index   *int
	Message string
}

func NewConfigurationError(msg string) *ConfigurationError {
	return &ConfigurationError{Message: msg}
}

func NewConfigurationErrorf(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}

func (e *ConfigurationError) AddField(field string) *ConfigurationError {
	e.Field = field
	return e
}

func (e *ConfigurationError) AddIndex(index int) *ConfigurationError {
	e.Index = &index
	return e
}

func (e *ConfigurationError) Error() string {
	path := []string{}
	if e.Field != "" {
		path = append(path, fmt.Sprintf("field '%s'", e.Field))
	}
	if e.Index != nil {
		path = append(path, fmt.Sprintf("entry %d", *e.Index))
	}

	if len(path) == 0 {
		return "invalid configuration: " + e.Message
	}

	return "invalid configuration: " + strings.Join(path, " -> ") + ": " + e.Message
}

func (e *ConfigurationError) ToHTTPError() *httperror.HTTPError {
	err := httperror.NewHTTPError(http.StatusBadRequest, e.Error()).AddMetaValue("field", e.Field)
	if e.Index != nil {
		err = err.AddMetaValue("index", strconv.Itoa(*e.Index))
	}
	return err
}

// AccountError ties a per-account failure to the source account that caused it.
type AccountError struct {
	AccountID   string
	AccountName string
	SourceName  string
	Err         error
}

func WrapAccountError(accountID string, err error) *AccountError {
	if err == nil {
		return nil
	}

	var accountErr *AccountError
	if errors.As(err, &accountErr) {
		return accountErr
	}

	return &AccountError{
		AccountID: accountID,
		Err:       err,
	}
}

func (e *AccountError) AddName(name, sourceName string) *AccountError {
	e.AccountName = name
	e.SourceName = sourceName
	return e
}

func (e *AccountError) Error() string {
	if e.AccountName != "" {
		return fmt.Sprintf("%s (%s) [%s]: %v", e.AccountName, e.SourceName, e.AccountID, e.Err)
	}
	return fmt.Sprintf("account %s: %v", e.AccountID, e.Err)
}

func (e *AccountError) Unwrap() error {
	return e.Err
}

// BatchError collects the per-account failures of one reconciliation pass.
type BatchError struct {
	Errors []*AccountError
}

func (b *BatchError) Add(err *AccountError) {
	if err == nil {
		return
	}
	b.Errors = append(b.Errors, err)
}

func (b *BatchError) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Errors)
}

func (b *BatchError) Error() string {
	if b.Len() == 0 {
		return "no errors"
	}

	lines := make([]string, 0, len(b.Errors))
	for _, e := range b.Errors {
		lines = append(lines, e.Error())
	}
	return fmt.Sprintf("%d account(s) failed: %s", len(b.Errors), strings.Join(lines, "; "))
}

// Messages returns one line per failed account, in the order they were collected.
func (b *BatchError) Messages() []string {
	if b.Len() == 0 {
		return nil
	}
	out := make([]string, 0, len(b.Errors))
	for _, e := range b.Errors {
		out = append(out, e.Error())
	}
	return out
}

func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

func IsTemplateError(err error) bool {
	var tplErr *TemplateError
	return errors.As(err, &tplErr)
}

func IsExhaustedCounterError(err error) bool {
	var exErr *ExhaustedCounterError
	return errors.As(err, &exErr)
}

// ToHTTPError converts domain errors to HTTP errors, passing through anything already mapped.
func ToHTTPError(err error) error {
	var cfgErr *ConfigurationError
	if errors.As(err, &cfgErr) {
		return cfgErr.ToHTTPError()
	}
	var tplErr *TemplateError
	if errors.As(err, &tplErr) {
		return tplErr.ToHTTPError()
	}
	var exErr *ExhaustedCounterError
	if errors.As(err, &exErr) {
		return exErr.ToHTTPError()
	}
	if httperror.IsHTTPError(err) {
		return err
	}
	return httperror.NewHTTPError(http.StatusInternalServerError, err.Error())
}
