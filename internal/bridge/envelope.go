package bridge

/*
#include <stdint.h>
#include <stdlib.h>

#ifndef ARROW_C_DATA_INTERFACE
#define ARROW_C_DATA_INTERFACE

struct ArrowSchema {
  const char* format;
  const char* name;
  const char* metadata;
  int64_t flags;
  int64_t n_children;
  struct ArrowSchema** children;
  struct ArrowSchema* dictionary;
  void (*release)(struct ArrowSchema*);
  void* private_data;
};

struct ArrowArray {
  int64_t length;
  int64_t null_count;
  int64_t offset;
  int64_t n_buffers;
  int64_t n_children;
  const void** buffers;
  struct ArrowArray** children;
  struct ArrowArray* dictionary;
  void (*release)(struct ArrowArray*);
  void* private_data;
};

#endif

static int adhesive_schema_live(uintptr_t p) {
  return p != 0 && ((struct ArrowSchema*)p)->release != NULL;
}

static int adhesive_array_live(uintptr_t p) {
  return p != 0 && ((struct ArrowArray*)p)->release != NULL;
}
*/
import "C"

import (
	"fmt"
	"strconv"
	"unsafe"

	"github.com/apache/arrow-go/v18/arrow/cdata"
)

// Envelope is one ArrowArray/ArrowSchema pair in C memory. It is valid for a
// single call across the runtime boundary and must be released on every
// return path.
type Envelope struct {
	Array  *cdata.CArrowArray
	Schema *cdata.CArrowSchema
}

// NewEnvelope allocates zeroed slots for the managed side to fill.
func NewEnvelope() *Envelope {
	return &Envelope{
		Array:  (*cdata.CArrowArray)(C.calloc(1, C.sizeof_struct_ArrowArray)),
		Schema: (*cdata.CArrowSchema)(C.calloc(1, C.sizeof_struct_ArrowSchema)),
	}
}

// Populated reports whether both slots carry a live release callback.
func (e *Envelope) Populated() bool {
	if e == nil {
		return false
	}
	return live(e.schemaAddr(), e.arrayAddr())
}

// Addrs returns the schema and array addresses as decimal strings, the form
// in which they cross into the managed runtime.
func (e *Envelope) Addrs() (schema, array string) {
	return FormatAddr(e.schemaAddr()), FormatAddr(e.arrayAddr())
}

// Release runs any release callbacks the consumer did not take over and
// frees the C structs. Safe to call more than once.
func (e *Envelope) Release() {
	if e == nil {
		return
	}
	if e.Array != nil {
		cdata.ReleaseCArrowArray(e.Array)
		C.free(unsafe.Pointer(e.Array))
		e.Array = nil
	}
	if e.Schema != nil {
		cdata.ReleaseCArrowSchema(e.Schema)
		C.free(unsafe.Pointer(e.Schema))
		e.Schema = nil
	}
}

func (e *Envelope) schemaAddr() uintptr { return uintptr(unsafe.Pointer(e.Schema)) }

func (e *Envelope) arrayAddr() uintptr { return uintptr(unsafe.Pointer(e.Array)) }

// FormatAddr renders a C address in decimal.
func FormatAddr(p uintptr) string {
	return strconv.FormatUint(uint64(p), 10)
}

// ParseAddr parses a decimal C address. Zero is rejected.
func ParseAddr(s string) (uintptr, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing address %q: %w", s, err)
	}
	if v == 0 {
		return 0, fmt.Errorf("null address")
	}
	return uintptr(v), nil
}

func live(schemaAddr, arrayAddr uintptr) bool {
	return C.adhesive_schema_live(C.uintptr_t(schemaAddr)) != 0 &&
		C.adhesive_array_live(C.uintptr_t(arrayAddr)) != 0
}

func slotsEmpty(schemaAddr, arrayAddr uintptr) bool {
	return C.adhesive_schema_live(C.uintptr_t(schemaAddr)) == 0 &&
		C.adhesive_array_live(C.uintptr_t(arrayAddr)) == 0
}
