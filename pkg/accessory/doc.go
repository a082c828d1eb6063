// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package accessory implements the runtime of a multi-function DCC accessory
// decoder.
//
// A decoder covers a run of consecutive accessory addresses. Each address is
// a slot with a fixed function kind (servo, twin coil, static/blinking output,
// light signal head, signal follower, distant signal) and a five-CV parameter
// block. Validated bus commands are routed by the Dispatcher to the slot's
// activation entry point; the Scheduler advances every slot's state machine
// once per 10 ms tick and the slots drive an Actuator.
//
// Everything runs in a single goroutine. Slots never share state; signal
// masts and distant signals refer to other slots by index.
package accessory
