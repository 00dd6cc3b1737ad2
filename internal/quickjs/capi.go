//go:build !v8

package quickjs

import (
	"fmt"
	"reflect"
	"unsafe"

	"modernc.org/libc"
	lib "modernc.org/libquickjs"
	"modernc.org/quickjs"
)

// QuickJS constants from quickjs.h that the Go wrapper does not export.
const (
	jsEvalTypeGlobal      = 0
	jsEvalFlagCompileOnly = 1 << 5
	jsWriteObjBytecode    = 1 << 0
	jsReadObjBytecode     = 1 << 0
	jsTagException        = 6
)

// capi caches the raw C handles behind a *quickjs.VM. The modernc wrapper
// covers plain evaluation only; bytecode serialization and the pending job
// queue need the C API directly.
type capi struct {
	tls *libc.TLS
	ctx uintptr // JSContext*
	rt  uintptr // JSRuntime*
}

// extractCAPI reads the unexported context, runtime and TLS values out of
// a VM through reflection. Pointers are never rebuilt from integers.
//
// VM struct layout (modernc.org/quickjs@v0.17.1):
//
//	type VM struct {
//	    cContext uintptr
//	    ...
//	    runtime  *runtime
//	    ...
//	}
//
//	type runtime struct {
//	    cRuntime uintptr
//	    tls      *libc.TLS
//	}
func extractCAPI(vm *quickjs.VM) (api capi, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic extracting VM internals: %v", p)
		}
	}()

	vmVal := reflect.ValueOf(vm).Elem()

	ctxField := vmVal.FieldByName("cContext")
	if !ctxField.IsValid() {
		return capi{}, fmt.Errorf("quickjs.VM missing 'cContext' field")
	}
	api.ctx = uintptr(ctxField.Uint())
	if api.ctx == 0 {
		return capi{}, fmt.Errorf("JSContext is nil")
	}

	rtField := vmVal.FieldByName("runtime")
	if !rtField.IsValid() || rtField.IsNil() {
		return capi{}, fmt.Errorf("runtime pointer is nil")
	}
	rtVal := reflect.NewAt(rtField.Type().Elem(), unsafe.Pointer(rtField.Pointer())).Elem()

	cRuntime := rtVal.FieldByName("cRuntime")
	if !cRuntime.IsValid() {
		return capi{}, fmt.Errorf("quickjs runtime missing 'cRuntime' field")
	}
	api.rt = uintptr(cRuntime.Uint())
	if api.rt == 0 {
		return capi{}, fmt.Errorf("JSRuntime is nil")
	}

	tlsField := rtVal.FieldByName("tls")
	if !tlsField.IsValid() || tlsField.IsNil() {
		return capi{}, fmt.Errorf("TLS is nil")
	}
	api.tls = (*libc.TLS)(unsafe.Pointer(tlsField.Pointer()))

	// Smoke-test: a trivial call proves the pointers are usable.
	glob := lib.XJS_GetGlobalObject(api.tls, api.ctx)
	lib.XFreeValue(api.tls, api.ctx, glob)
	return api, nil
}

func isException(v lib.TJSValue) bool {
	return v.Ftag == jsTagException
}

// eval runs JS_Eval on text. The returned value is owned by the caller. On
// an exception the pending exception is left in the context for
// takeException.
func (a capi) eval(text, filename string, flags int32) (lib.TJSValue, bool, error) {
	cText, err := libc.CString(text)
	if err != nil {
		return lib.TJSValue{}, false, fmt.Errorf("allocating script text: %w", err)
	}
	defer libc.Xfree(a.tls, cText)

	cName, err := libc.CString(filename)
	if err != nil {
		return lib.TJSValue{}, false, fmt.Errorf("allocating file name: %w", err)
	}
	defer libc.Xfree(a.tls, cName)

	v := lib.XJS_Eval(a.tls, a.ctx, cText, lib.Tsize_t(len(text)), cName, flags)
	return v, !isException(v), nil
}

// writeBytecode serializes a compiled function object. The caller keeps
// ownership of fn.
func (a capi) writeBytecode(fn lib.TJSValue) ([]byte, bool) {
	var size lib.Tsize_t
	buf := lib.XJS_WriteObject(a.tls, a.ctx, uintptr(unsafe.Pointer(&size)), fn, jsWriteObjBytecode)
	if buf == 0 {
		return nil, false
	}
	out := make([]byte, size)
	copy(out, unsafe.Slice((*byte)(unsafe.Pointer(buf)), size))
	lib.Xjs_free(a.tls, a.ctx, buf)
	return out, true
}

// readBytecode deserializes a function object written by writeBytecode.
func (a capi) readBytecode(payload []byte) (lib.TJSValue, bool) {
	v := lib.XJS_ReadObject(a.tls, a.ctx, uintptr(unsafe.Pointer(&payload[0])), lib.Tsize_t(len(payload)), jsReadObjBytecode)
	return v, !isException(v)
}

// evalFunction runs a function object read by readBytecode. It consumes fn.
func (a capi) evalFunction(fn lib.TJSValue) (lib.TJSValue, bool) {
	v := lib.XJS_EvalFunction(a.tls, a.ctx, fn)
	return v, !isException(v)
}

// stash stores v as globalThis[name], consuming v.
func (a capi) stash(name string, v lib.TJSValue) error {
	cName, err := libc.CString(name)
	if err != nil {
		lib.XFreeValue(a.tls, a.ctx, v)
		return fmt.Errorf("allocating property name: %w", err)
	}
	glob := lib.XJS_GetGlobalObject(a.tls, a.ctx)
	// JS_SetPropertyStr consumes the val reference; do not free v after.
	ret := lib.XJS_SetPropertyStr(a.tls, a.ctx, glob, cName, v)
	lib.XFreeValue(a.tls, a.ctx, glob)
	libc.Xfree(a.tls, cName)
	if ret < 0 {
		return fmt.Errorf("setting global %q", name)
	}
	return nil
}

// exception takes the context's pending exception. The value is owned by
// the caller.
func (a capi) exception() lib.TJSValue {
	return lib.XJS_GetException(a.tls, a.ctx)
}

func (a capi) free(v lib.TJSValue) {
	lib.XFreeValue(a.tls, a.ctx, v)
}

// jobPending reports whether the runtime's Promise job queue is non-empty.
func (a capi) jobPending() bool {
	return lib.XJS_IsJobPending(a.tls, a.rt) != 0
}

// executeJob runs a single pending job. It returns false if the job threw;
// the exception is then pending on the context.
func (a capi) executeJob() bool {
	var jobCtx uintptr // JSContext** out-parameter
	return lib.XJS_ExecutePendingJob(a.tls, a.rt, uintptr(unsafe.Pointer(&jobCtx))) >= 0
}
