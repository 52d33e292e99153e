// Package kcore is the root facade of the kernel CORE: it assembles the
// frame allocator, address-space manager, scheduler, IPC core, and the
// fibril/async runtime into a single in-process simulation.
package kcore

import (
	"errors"
	"fmt"
)

// Code is the kernel's fixed error enumeration (spec §6/§7). Syscall
// return values and IPC reply retvals carry one of these.
type Code string

const (
	EOK      Code = "EOK"
	ENOENT   Code = "ENOENT"
	EIO      Code = "EIO"
	EINVAL   Code = "EINVAL"
	ENOMEM   Code = "ENOMEM"
	EBUSY    Code = "EBUSY"
	EAGAIN   Code = "EAGAIN"
	ELIMIT   Code = "ELIMIT"
	EHANGUP  Code = "EHANGUP"
	EINTR    Code = "EINTR"
	ETIMEOUT Code = "ETIMEOUT"
	EPERM    Code = "EPERM"
	ENOTSUP  Code = "ENOTSUP"
	EEXIST   Code = "EEXIST"
	ENOSPC   Code = "ENOSPC"
)

// Error is a structured kcore error with enough context to diagnose a
// failure without string-matching a message. Op/TaskID/Queue are filled
// in as available at each call site, same pattern as go-ublk's Error.
type Error struct {
	Op     string // operation that failed, e.g. "as_area_create"
	TaskID uint64 // owning task id (0 if not applicable)
	Queue  int    // CPU/queue index (-1 if not applicable)
	Code   Code
	Msg    string
	Inner  error
}

func (e *Error) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.TaskID != 0 {
		parts = append(parts, fmt.Sprintf("task=%d", e.TaskID))
	}
	if e.Queue >= 0 {
		parts = append(parts, fmt.Sprintf("cpu=%d", e.Queue))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if len(parts) > 0 {
		return fmt.Sprintf("kcore: %s (%s)", msg, parts[0])
	}
	return fmt.Sprintf("kcore: %s", msg)
}

func (e *Error) Unwrap() error { return e.Inner }

// Is supports errors.Is against both *Error (by Code) and a bare Code.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if code, ok := target.(Code); ok {
		return e.Code == code
	}
	var te *Error
	if errors.As(target, &te) {
		return e.Code == te.Code
	}
	return false
}

// Error lets a bare Code satisfy the error interface, so call sites can
// write "return ENOENT" without constructing an *Error when no extra
// context is available.
func (c Code) Error() string { return string(c) }

// NewError builds a structured error for operation op with message msg.
func NewError(op string, code Code, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg, Queue: -1}
}

// NewTaskError builds a structured error scoped to a task.
func NewTaskError(op string, taskID uint64, code Code, msg string) *Error {
	return &Error{Op: op, TaskID: taskID, Code: code, Msg: msg, Queue: -1}
}

// NewCPUError builds a structured error scoped to a CPU/queue index.
func NewCPUError(op string, cpu int, code Code, msg string) *Error {
	return &Error{Op: op, Queue: cpu, Code: code, Msg: msg}
}

// WrapError wraps an arbitrary error under operation op, preserving a
// kcore Code if inner already carries one, else classifying it EIO.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	var ke *Error
	if errors.As(inner, &ke) {
		return &Error{Op: op, TaskID: ke.TaskID, Queue: ke.Queue, Code: ke.Code, Msg: ke.Msg, Inner: inner}
	}
	return &Error{Op: op, Code: EIO, Msg: inner.Error(), Inner: inner, Queue: -1}
}

// IsCode reports whether err carries the given kcore Code.
func IsCode(err error, code Code) bool {
	var ke *Error
	if errors.As(err, &ke) {
		return ke.Code == code
	}
	return errors.Is(err, code)
}
