package chunk

import (
	"strings"
	"testing"

	"skyhetu-vm/internal/value"
)

func TestWriteAndConstants(t *testing.T) {
	c := New()
	c.Write(OP_CONSTANT, 1)
	idx := c.AddConstant(value.NewNumber(42))
	c.WriteU16(idx, 1)
	c.Write(OP_RETURN, 2)

	if len(c.Code) != 4 {
		t.Fatalf("expected 4 code bytes, got %d", len(c.Code))
	}
	if len(c.Constants) != 1 {
		t.Fatalf("expected 1 constant, got %d", len(c.Constants))
	}
	if len(c.Lines) != len(c.Code) {
		t.Fatalf("lines must parallel code: %d vs %d", len(c.Lines), len(c.Code))
	}
}

func TestU16BigEndian(t *testing.T) {
	c := New()
	c.WriteU16(0x1234, 1)
	if c.Code[0] != 0x12 || c.Code[1] != 0x34 {
		t.Fatalf("u16 must be big-endian: % x", c.Code)
	}
	if got := c.ReadU16(0); got != 0x1234 {
		t.Fatalf("round trip failed: %04x", got)
	}
}

func TestNameTableDedup(t *testing.T) {
	c := New()
	a := c.AddName("counter")
	b := c.AddName("other")
	again := c.AddName("counter")

	if a != again {
		t.Errorf("duplicate name must reuse index: %d vs %d", a, again)
	}
	if a == b {
		t.Errorf("distinct names must get distinct indices")
	}
	if len(c.Names) != 2 {
		t.Errorf("expected 2 names, got %d", len(c.Names))
	}
}

func TestPatchJump(t *testing.T) {
	c := New()
	c.Write(OP_JUMP_IF_FALSE, 1)
	c.WriteU16(0xffff, 1)
	operand := c.Len() - 2

	c.Write(OP_POP, 1)
	c.Write(OP_POP, 1)
	c.PatchJump(operand)

	// Displacement is relative to the byte just past the operand.
	if got := c.ReadU16(operand); got != 2 {
		t.Fatalf("expected displacement 2, got %d", got)
	}
}

func TestDisassemble(t *testing.T) {
	c := New()
	c.Write(OP_CONSTANT, 1)
	c.WriteU16(c.AddConstant(value.NewNumber(1.5)), 1)
	c.Write(OP_TRANSITION, 2)
	c.WriteU16(c.AddName("x"), 2)
	c.Write(OP_RETURN, 2)

	out := c.Disassemble("test")
	for _, want := range []string{"== test ==", "OP_CONSTANT", "1.5", "OP_TRANSITION", "'x'", "OP_RETURN"} {
		if !strings.Contains(out, want) {
			t.Errorf("disassembly missing %q:\n%s", want, out)
		}
	}
}
