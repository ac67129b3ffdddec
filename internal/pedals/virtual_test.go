package pedals

import (
	"errors"
	"testing"
)

func TestFormatParseStates(t *testing.T) {
	states := []bool{true, false, false, true}
	s := FormatStates(states)
	if s != "tfft" {
		t.Fatalf("FormatStates: got %q, want tfft", s)
	}
	back := ParseStates(s)
	for i := range states {
		if back[i] != states[i] {
			t.Errorf("pedal %d: got %v, want %v", i, back[i], states[i])
		}
	}
	if FormatStates(nil) != "" {
		t.Error("expected empty string for no pedals")
	}
}

func TestParseMessage(t *testing.T) {
	tests := []struct {
		in   string
		want Message
	}{
		{"n,3,tft", Message{Kind: MessageCount, Count: 3, States: ParseStates("tft")}},
		{"n,0", Message{Kind: MessageCount}},
		{"p,1,true,ttt", Message{Kind: MessagePedal, Index: 1, State: true, States: ParseStates("ttt")}},
		{"p,0,false", Message{Kind: MessagePedal}},
		{" n,2,ff\n", Message{Kind: MessageCount, Count: 2, States: ParseStates("ff")}},
	}
	for _, tt := range tests {
		got, err := ParseMessage(tt.in)
		if err != nil {
			t.Errorf("ParseMessage(%q): %v", tt.in, err)
			continue
		}
		if got.Kind != tt.want.Kind || got.Count != tt.want.Count || got.Index != tt.want.Index || got.State != tt.want.State {
			t.Errorf("ParseMessage(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
		if FormatStates(got.States) != FormatStates(tt.want.States) {
			t.Errorf("ParseMessage(%q) states = %s, want %s", tt.in, FormatStates(got.States), FormatStates(tt.want.States))
		}
	}
}

func TestParseMessageErrors(t *testing.T) {
	bad := []string{
		"",
		"v",
		"x,1",
		"nn,1",
		"n",
		"n,-1",
		"n,two,tt",
		"p,1",
		"p,a,true",
		"p,1,maybe",
		"p,1,true,tt,extra",
	}
	for _, in := range bad {
		if _, err := ParseMessage(in); err == nil {
			t.Errorf("ParseMessage(%q): expected error", in)
		}
	}
}

func TestMessageString(t *testing.T) {
	m := Message{Kind: MessagePedal, Index: 2, State: true, States: ParseStates("fft")}
	if m.String() != "p,2,true,fft" {
		t.Errorf("got %q", m.String())
	}
	m = Message{Kind: MessageCount, Count: 2, States: ParseStates("tf")}
	if m.String() != "n,2,tf" {
		t.Errorf("got %q", m.String())
	}
}

func TestVirtualBankCountThenPedal(t *testing.T) {
	v := NewVirtualBank()

	if err := v.Apply(Message{Kind: MessageCount, Count: 3, States: ParseStates("tf")}); err != nil {
		t.Fatalf("apply count: %v", err)
	}
	ev := <-v.Events()
	if ev.Kind != CountChanged || ev.Count != 3 {
		t.Fatalf("got %+v", ev)
	}
	// Short state strings are padded with released pedals.
	assertStates(t, ev.States, "tff")

	if err := v.Apply(Message{Kind: MessagePedal, Index: 2, State: true}); err != nil {
		t.Fatalf("apply pedal: %v", err)
	}
	ev = <-v.Events()
	if ev.Kind != PedalChanged || ev.Index != 2 || !ev.State {
		t.Fatalf("got %+v", ev)
	}
	assertStates(t, ev.States, "tft")
	assertStates(t, v.States(), "tft")
}

func TestVirtualBankPedalOutOfRange(t *testing.T) {
	v := NewVirtualBank()
	if err := v.Apply(Message{Kind: MessagePedal, Index: 0, State: true}); err == nil {
		t.Error("expected error for pedal on empty bank")
	}
}

func TestVirtualBankQueueFull(t *testing.T) {
	v := NewVirtualBank()
	var err error
	for i := 0; i < cap(v.events)+1; i++ {
		err = v.Apply(Message{Kind: MessageCount, Count: 1})
	}
	if !errors.Is(err, ErrBankFull) {
		t.Errorf("expected ErrBankFull, got %v", err)
	}
}

func TestVirtualBankHandleMessage(t *testing.T) {
	v := NewVirtualBank()
	v.HandleMessage([]byte("garbage"))
	v.HandleMessage([]byte("n,2,ft"))

	ev := <-v.Events()
	if ev.Count != 2 {
		t.Fatalf("got %+v", ev)
	}
	select {
	case extra := <-v.Events():
		t.Errorf("unexpected event %+v", extra)
	default:
	}
}

func TestVirtualBankClose(t *testing.T) {
	v := NewVirtualBank()
	v.Close()
	v.Close()

	if _, ok := <-v.Events(); ok {
		t.Error("events channel should be closed")
	}
	if err := v.Apply(Message{Kind: MessageCount, Count: 1}); err == nil {
		t.Error("expected error after close")
	}
}
