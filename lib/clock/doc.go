// Copyright 2026 The Msglog Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock is the injectable time source used by the scheduler
// and the archiving job.
//
// Production code takes a [Clock] and is given [Real]; tests use
// [Fake], which stands still until [FakeClock.Advance] is called. A
// goroutine waiting on After races with the test's Advance, so tests
// call [FakeClock.WaitForTimers] first:
//
//	go scheduler.Run(ctx)
//	fake.WaitForTimers(1)
//	fake.Advance(time.Hour)
package clock
