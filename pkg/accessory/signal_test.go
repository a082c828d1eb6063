// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package accessory

import "testing"

// mast is a signal2 head with one signal0 follower: four single-lamp aspects
// on pins 9, 14, 7 and 10
func mast(headMode uint8) []SlotDefaults {
	return []SlotDefaults{
		{Kind: KindSignal2, Pins: [3]Pin{9, 14, 7}, Mode: headMode, Params: [4]uint8{0b0001, 0b0010, 0, 0}},
		{Kind: KindSignal0, Pins: [3]Pin{10, NC, NC}, Params: [4]uint8{0b0100, 0b1000, 0, 0}},
	}
}

var mastPins = []Pin{9, 14, 7, 10}

func lit(rec *recorder) []Pin {
	var on []Pin
	for _, p := range mastPins {
		if rec.levels[p] == LevelOn {
			on = append(on, p)
		}
	}
	return on
}

func TestSignal_ColdStart(t *testing.T) {
	dec, rec := newDecoder(t, mast(0)...)
	on := lit(rec)
	if len(on) != 1 || on[0] != 9 {
		t.Errorf("lit at power-up = %v, want [9]", on)
	}
	st := dec.Status()[0]
	if st.Aspect != 0 || st.Phase != PhaseStable {
		t.Errorf("status = aspect %d phase %v, want 0 stable", st.Aspect, st.Phase)
	}
}

func TestSignal_DarkBeforeRise(t *testing.T) {
	dec, rec := newDecoder(t, mast(0)...)
	darkTicks := dec.Registry.darkTicks

	send(dec, 20, 1, true)

	run, before := 0, -1
	for i := 0; i < 500; i++ {
		tick(dec, 1)
		if rec.levels[14] > 0 {
			before = run
			break
		}
		dark := true
		for _, p := range mastPins {
			if rec.levels[p] != LevelOff {
				dark = false
			}
		}
		if dark {
			run++
		} else {
			run = 0
		}
	}

	if before < 0 {
		t.Fatal("new aspect never started rising")
	}
	if before < darkTicks {
		t.Errorf("blanked for %d ticks before rising, want at least %d", before, darkTicks)
	}

	tick(dec, 200)
	if on := lit(rec); len(on) != 1 || on[0] != 14 {
		t.Errorf("lit = %v, want [14]", on)
	}
	st := dec.Status()[0]
	if st.Aspect != 1 || st.Phase != PhaseStable {
		t.Errorf("status = aspect %d phase %v, want 1 stable", st.Aspect, st.Phase)
	}
}

func TestSignal_HardOutputs(t *testing.T) {
	dec, rec := newDecoder(t, mast(0b010)...)
	send(dec, 20, 1, true)

	for i := 0; i < 500 && rec.levels[14] == LevelOff; i++ {
		tick(dec, 1)
	}
	if rec.levels[14] != LevelOn {
		t.Fatalf("hard output did not switch on in one step")
	}
	if st := dec.Status()[0]; st.Phase != PhaseStable {
		t.Errorf("phase = %v, want stable once hard output is on", st.Phase)
	}

	send(dec, 20, 0, true)
	if rec.levels[14] != LevelOff {
		t.Error("hard output not switched off at once")
	}
}

func TestSignal_FollowerAspect(t *testing.T) {
	dec, rec := newDecoder(t, mast(0)...)
	if got := send(dec, 21, 1, true); got != OutcomeApplied {
		t.Fatalf("follower command = %v, want applied", got)
	}
	tick(dec, 200)
	if on := lit(rec); len(on) != 1 || on[0] != 10 {
		t.Errorf("lit = %v, want [10]", on)
	}
	if st := dec.Status()[0]; st.Aspect != 3 {
		t.Errorf("aspect = %d, want 3", st.Aspect)
	}
}

func TestSignal_RetargetWhileDark(t *testing.T) {
	dec, rec := newDecoder(t, mast(0)...)
	send(dec, 20, 1, true)
	tick(dec, 50)
	if st := dec.Status()[0]; st.Phase != PhaseDark {
		t.Fatalf("phase = %v, want dark", st.Phase)
	}

	send(dec, 21, 0, true)
	if st := dec.Status()[0]; st.Phase != PhaseDark {
		t.Errorf("phase = %v after retarget, want dark", st.Phase)
	}
	tick(dec, 200)
	if on := lit(rec); len(on) != 1 || on[0] != 7 {
		t.Errorf("lit = %v, want [7]", on)
	}
}

func TestSignal_NewAspectWhileRising(t *testing.T) {
	dec, rec := newDecoder(t, mast(0)...)
	send(dec, 20, 1, true)
	for i := 0; i < 500 && rec.levels[14] == LevelOff; i++ {
		tick(dec, 1)
	}
	if st := dec.Status()[0]; st.Phase != PhaseBrightening {
		t.Fatalf("phase = %v, want brightening", st.Phase)
	}

	send(dec, 21, 0, true)
	if st := dec.Status()[0]; st.Phase != PhaseDarkening {
		t.Errorf("phase = %v, want darkening", st.Phase)
	}
	tick(dec, 300)
	if on := lit(rec); len(on) != 1 || on[0] != 7 {
		t.Errorf("lit = %v, want [7]", on)
	}
}

func TestSignal_InvertSoft(t *testing.T) {
	_, rec := newDecoder(t, mast(SignalInvert)...)
	if rec.levels[9] != LevelOff || rec.levels[14] != LevelOn {
		t.Errorf("inverted outputs = %d/%d, want %d/%d", rec.levels[9], rec.levels[14], LevelOff, LevelOn)
	}
}

// distantBoard is a main signal at 20 linked to a distant signal at 22 that
// announces a foreign main signal at 40
func distantBoard() []SlotDefaults {
	return []SlotDefaults{
		{Kind: KindSignal2, Pins: [3]Pin{9, 14, NC}, Params: [4]uint8{0b01, 0b10, 3, 0b01}},
		{Kind: KindStatic, Pins: [3]Pin{16, 17, NC}, Params: [4]uint8{1, 1, 0, 0}},
		{Kind: KindVorsignal, Pins: [3]Pin{15, 18, NC}, Params: [4]uint8{0b01, 0b10, 40, 0}},
	}
}

func TestVorsignal_DarkWithMain(t *testing.T) {
	dec, rec := newDecoder(t, distantBoard()...)
	if rec.levels[15] != LevelOff || rec.levels[18] != LevelOff {
		t.Fatal("distant signal lit while main shows a dark aspect")
	}
	if !dec.Status()[2].Dark {
		t.Error("distant signal status not dark")
	}

	send(dec, 20, 1, true)
	tick(dec, 200)
	if rec.levels[15] != LevelOn || rec.levels[18] != LevelOff {
		t.Errorf("distant outputs = %d/%d, want on/off", rec.levels[15], rec.levels[18])
	}
	if dec.Status()[2].Dark {
		t.Error("distant signal still dark")
	}

	send(dec, 20, 0, true)
	tick(dec, 200)
	if rec.levels[15] != LevelOff || rec.levels[18] != LevelOff {
		t.Error("distant signal not dark again")
	}
}

func TestVorsignal_FollowsAnnouncedMain(t *testing.T) {
	dec, rec := newDecoder(t, distantBoard()...)
	send(dec, 20, 1, true)
	tick(dec, 200)

	if got := send(dec, 40, 1, true); got != OutcomeDropped {
		t.Errorf("foreign address = %v, want dropped", got)
	}
	tick(dec, 200)
	if rec.levels[15] != LevelOff || rec.levels[18] != LevelOn {
		t.Errorf("distant outputs = %d/%d, want off/on", rec.levels[15], rec.levels[18])
	}

	// Own address works as well
	if got := send(dec, 22, 0, true); got != OutcomeApplied {
		t.Errorf("own address = %v, want applied", got)
	}
	tick(dec, 200)
	if rec.levels[15] != LevelOn {
		t.Error("distant signal not back to aspect 0")
	}
}
