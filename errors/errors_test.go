package errors

import (
	"errors"
	"reflect"
	"testing"
)

func TestCast(t *testing.T) {
	type args struct {
		err error
	}
	tests := []struct {
		name   string
		args   args
		want   Error
		wantOK bool
	}{
		{
			name: "with rich error",
			args: args{
				err: Error{
					Code:    ErrNotFound,
					Kind:    KindUnknownEvent,
					Err:     nil,
					Message: "event lookup",
				},
			},
			want: Error{
				Code:    ErrNotFound,
				Kind:    KindUnknownEvent,
				Err:     nil,
				Message: "event lookup",
			},
			wantOK: true,
		},
		{
			name: "with rich error and original error",
			args: args{
				err: Error{
					Code:    ErrBadRequest,
					Err:     errors.New("no rows in result set"),
					Message: "event lookup",
				},
			},
			want: Error{
				Code:    ErrBadRequest,
				Err:     errors.New("no rows in result set"),
				Message: "event lookup",
			},
			wantOK: true,
		},
		{
			name: "with nil error",
			args: args{
				err: nil,
			},
			want: Error{
				Code:    ErrUnexpected,
				Err:     nil,
				Message: "unknown operation",
				Details: make(Details),
			},
			wantOK: false,
		},
		{
			name: "with simple error",
			args: args{
				err: errors.New("connection reset"),
			},
			want: Error{
				Code:    ErrUnexpected,
				Err:     errors.New("connection reset"),
				Message: "unknown operation",
				Details: make(Details),
			},
			wantOK: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, ok := Cast(tt.args.err); !reflect.DeepEqual(got, tt.want) || ok != tt.wantOK {
				t.Errorf("Cast() = %v, %v, want %v, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestError_Error(t *testing.T) {
	type fields struct {
		Code    Code
		Err     error
		Message string
	}
	tests := []struct {
		name   string
		fields fields
		want   string
	}{
		{
			name: "with original error",
			fields: fields{
				Code:    ErrInternal,
				Err:     errors.New("connection reset"),
				Message: "load events",
			},
			want: "load events: connection reset",
		},
		{
			name: "without original error",
			fields: fields{
				Code:    ErrBadRequest,
				Message: "end not after start",
			},
			want: "end not after start",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := Error{
				Code:    tt.fields.Code,
				Err:     tt.fields.Err,
				Message: tt.fields.Message,
			}
			if got := e.Error(); got != tt.want {
				t.Errorf("Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFromErr(t *testing.T) {
	type args struct {
		message string
		code    Code
		err     error
	}
	tests := []struct {
		name string
		args args
		want error
	}{
		{
			name: "example 0",
			args: args{
				message: "decode request body",
				code:    ErrBadRequest,
				err:     errors.New("unexpected end of JSON input"),
			},
			want: errors.New("decode request body: unexpected end of JSON input"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := FromErr(tt.args.message, tt.args.code, tt.args.err, nil); err == nil || err.Error() != tt.want.Error() {
				t.Errorf("FromErr() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	type args struct {
		message string
		err     error
	}
	tests := []struct {
		name string
		args args
		want error
	}{
		{
			name: "with rich error",
			args: args{
				message: "check assignment",
				err: Error{
					Code:    ErrNotFound,
					Err:     errors.New("no rows in result set"),
					Message: "event lookup",
				},
			},
			want: errors.New("check assignment: event lookup: no rows in result set"),
		},
		{
			name: "with simple error",
			args: args{
				message: "check assignment",
				err:     errors.New("connection reset"),
			},
			want: errors.New("check assignment: connection reset"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Wrap(tt.args.err, tt.args.message, nil); err == nil || err.Error() != tt.want.Error() {
				t.Errorf("Wrap() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestWrapKeepsClassification(t *testing.T) {
	origErr := errors.New("no rows in result set")
	err := Wrap(Error{
		Code:    ErrNotFound,
		Kind:    KindUnknownEvent,
		Err:     origErr,
		Message: "event lookup",
	}, "check assignment", nil)
	e, ok := Cast(err)
	if !ok {
		t.Fatalf("Wrap() should keep rich errors castable")
	}
	if e.Code != ErrNotFound || e.Kind != KindUnknownEvent {
		t.Errorf("Wrap() classification = %v/%v, want %v/%v", e.Code, e.Kind, ErrNotFound, KindUnknownEvent)
	}
	if e.Err != origErr {
		t.Errorf("Wrap() original error = %v, want %v", e.Err, origErr)
	}
}

func TestWrapDetails(t *testing.T) {
	err := Wrap(Error{
		Code:    ErrConcurrentModification,
		Kind:    KindVersionMismatch,
		Message: "bump event version",
		Details: Details{"version": 2},
	}, "update event details", Details{
		"version": 3,
		"event":   "soccer practice",
	})
	e, _ := Cast(err)
	want := Details{
		"version":  3,
		"_version": 2,
		"event":    "soccer practice",
	}
	if !reflect.DeepEqual(e.Details, want) {
		t.Errorf("Wrap() details = %v, want %v", e.Details, want)
	}
}

func TestBlameUser(t *testing.T) {
	type args struct {
		err error
	}
	tests := []struct {
		name string
		args args
		want bool
	}{
		{
			name: "not found",
			args: args{
				err: Error{Code: ErrNotFound},
			},
			want: true,
		},
		{
			name: "bad request",
			args: args{
				err: Error{Code: ErrBadRequest},
			},
			want: true,
		},
		{
			name: "protocol violation",
			args: args{
				err: Error{Code: ErrProtocolViolation},
			},
			want: true,
		},
		{
			name: "concurrent modification",
			args: args{
				err: Error{Code: ErrConcurrentModification},
			},
			want: true,
		},
		{
			name: "internal",
			args: args{
				err: Error{Code: ErrInternal},
			},
			want: false,
		},
		{
			name: "communication",
			args: args{
				err: Error{Code: ErrCommunication},
			},
			want: false,
		},
		{
			name: "fatal",
			args: args{
				err: Error{Code: ErrFatal},
			},
			want: false,
		},
		{
			name: "unexpected",
			args: args{
				err: errors.New("unknown error"),
			},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BlameUser(tt.args.err); got != tt.want {
				t.Errorf("BlameUser() = %v, want %v", got, tt.want)
			}
		})
	}
}
