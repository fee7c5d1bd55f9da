package command

import (
	"errors"
	"fmt"
	"strconv"

	protov1 "github.com/golang/protobuf/proto"
	"golang.org/x/exp/constraints"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"
)

// ErrorDomain is the domain of the errdetails.ErrorInfo that is attached to
// the gRPC status of a Rejection.
const ErrorDomain = "cqrs.command"

var (
	// ErrUnhandled is returned when a command is processed that has no
	// registered handler.
	ErrUnhandled = errors.New("unhandled command")
)

// CodedError is an error with an error code.
type CodedError[Code constraints.Integer] interface {
	Code() Code
}

// LocalizedMessage is a localized error message. This interface is implemented
// by [*errdetails.LocalizedMessage].
type LocalizedMessage interface {
	GetLocale() string
	GetMessage() string
}

// Rejection is a business-rule rejection of a command. Handlers return a
// Rejection to refuse a command; processors pass it through to the caller
// untouched and never retry it.
//
// To create a Rejection, call [Reject]:
//
//	if balance < amount {
//		return command.Reject(InsufficientFunds, ErrInsufficientFunds,
//			command.WithErrorDetails(command.LocalizeError("en", "Not enough money.")),
//		)
//	}
type Rejection struct {
	code       int64
	underlying error
	details    []*ErrDetail
}

// ErrDetail is an error detail. A detail can be an arbitrary protobuf message.
type ErrDetail struct {
	pb    *anypb.Any
	value proto.Message
}

// LocalizeError creates a new [*ErrDetail] that contains the provided localized
// error message.
func LocalizeError(locale, msg string) *ErrDetail {
	d, _ := NewErrorDetail(&errdetails.LocalizedMessage{
		Locale:  locale,
		Message: msg,
	})
	return d
}

// NewErrorDetail creates a new [*ErrDetail] from the provided protobuf message.
// If the provided message is not already an [*anypb.Any], it is wrapped in a new
// [*anypb.Any].
func NewErrorDetail(msg proto.Message) (*ErrDetail, error) {
	if a, ok := msg.(*anypb.Any); ok {
		return &ErrDetail{pb: a}, nil
	}

	pb, err := anypb.New(msg)
	if err != nil {
		return nil, err
	}

	return &ErrDetail{pb: pb, value: msg}, nil
}

// AsAny returns the detail as an [*anypb.Any].
func (detail *ErrDetail) AsAny() *anypb.Any {
	return detail.pb
}

// Value returns the detail as a protobuf message.
func (detail *ErrDetail) Value() (proto.Message, error) {
	if detail.value != nil {
		return detail.value, nil
	}
	v, err := detail.pb.UnmarshalNew()
	if err != nil {
		return nil, err
	}
	detail.value = v
	return v, nil
}

// ErrorOption is an option for creating a Rejection.
type ErrorOption func(*Rejection)

// WithErrorDetails adds details to the Rejection.
func WithErrorDetails(details ...*ErrDetail) ErrorOption {
	return func(r *Rejection) {
		r.details = append(r.details, details...)
	}
}

// Reject returns a Rejection with the given code and underlying error.
func Reject[Code constraints.Integer](code Code, underlying error, opts ...ErrorOption) *Rejection {
	r := &Rejection{code: int64(code), underlying: underlying}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rejectf returns a Rejection with the given code and a formatted error message.
func Rejectf[Code constraints.Integer](code Code, format string, args ...any) *Rejection {
	return Reject(code, fmt.Errorf(format, args...))
}

// RejectionCode returns the code of the Rejection in err's chain. If err does
// not wrap a Rejection, but implements CodedError[Code], that code is
// returned.
func RejectionCode[Code constraints.Integer](err error) (Code, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return Code(rej.code), true
	}

	var coded CodedError[Code]
	if errors.As(err, &coded) {
		return coded.Code(), true
	}

	return 0, false
}

// IsRejection returns whether err is or wraps a *Rejection.
func IsRejection(err error) bool {
	var rej *Rejection
	return errors.As(err, &rej)
}

// Error returns the message of the underlying error, or a representation of
// the code if there is none.
func (r *Rejection) Error() string {
	if r.underlying != nil {
		return r.underlying.Error()
	}
	return fmt.Sprintf("<REJECTED %d>", r.code)
}

// Code returns the rejection code.
func (r *Rejection) Code() int64 {
	return r.code
}

// Unwrap returns the underlying error.
func (r *Rejection) Unwrap() error {
	return r.underlying
}

// Details returns the details of the Rejection.
func (r *Rejection) Details() []*ErrDetail {
	return r.details
}

// Localized returns the localized message for the given locale, or an empty
// string.
func (r *Rejection) Localized(locale string) string {
	for _, detail := range r.details {
		msg, err := detail.Value()
		if err != nil {
			continue
		}
		if lm, ok := msg.(LocalizedMessage); ok && lm.GetLocale() == locale {
			return lm.GetMessage()
		}
	}
	return ""
}

// GRPCStatus returns the Rejection as a FailedPrecondition status. The
// rejection code is attached as an errdetails.ErrorInfo, followed by the
// details of the Rejection.
func (r *Rejection) GRPCStatus() *status.Status {
	details := []proto.Message{&errdetails.ErrorInfo{
		Reason:   "REJECTED",
		Domain:   ErrorDomain,
		Metadata: map[string]string{"code": strconv.FormatInt(r.code, 10)},
	}}
	for _, d := range r.details {
		if v, err := d.Value(); err == nil {
			details = append(details, v)
		}
	}
	st := status.New(codes.FailedPrecondition, r.Error())
	v1 := make([]protov1.Message, len(details))
	for i, d := range details {
		v1[i] = protov1.MessageV1(d)
	}
	if withDetails, err := st.WithDetails(v1...); err == nil {
		st = withDetails
	}
	return st
}

// FromStatus converts a status that was created by Rejection.GRPCStatus back
// into a Rejection. FromStatus returns false if st is not a rejection status.
func FromStatus(st *status.Status) (*Rejection, bool) {
	if st == nil || st.Code() != codes.FailedPrecondition {
		return nil, false
	}

	var (
		r     = &Rejection{underlying: errors.New(st.Message())}
		found bool
	)
	for _, d := range st.Details() {
		msg, ok := d.(proto.Message)
		if !ok {
			continue
		}

		if info, ok := msg.(*errdetails.ErrorInfo); ok && info.GetDomain() == ErrorDomain {
			code, err := strconv.ParseInt(info.GetMetadata()["code"], 10, 64)
			if err != nil {
				return nil, false
			}
			r.code = code
			found = true
			continue
		}

		if detail, err := NewErrorDetail(msg); err == nil {
			r.details = append(r.details, detail)
		}
	}

	return r, found
}

// ConcurrencyError is returned by a processor when a command could not be
// committed because of concurrency conflicts, after all retries were used up.
type ConcurrencyError struct {
	Command  string
	Attempts int

	// Err is the conflict of the last attempt.
	Err error
}

func (err *ConcurrencyError) Error() string {
	return fmt.Sprintf("concurrency conflict after %d attempts: %v [command=%s]", err.Attempts, err.Err, err.Command)
}

// Unwrap returns the conflict of the last attempt.
func (err *ConcurrencyError) Unwrap() error {
	return err.Err
}

// ProcessingError is returned by a processor when a command fails for any
// reason other than a rejection or a concurrency conflict.
type ProcessingError struct {
	Command string
	Cause   error
}

func (err *ProcessingError) Error() string {
	return fmt.Sprintf("process command: %v [command=%s]", err.Cause, err.Command)
}

// Unwrap returns the cause of the error.
func (err *ProcessingError) Unwrap() error {
	return err.Cause
}
