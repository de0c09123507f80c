// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package vpu

// A ScoreFunc reduces one normalized result to a scalar score, for instance
// an expectation value or a cost-function evaluation. Scheduler batch calls
// apply it to each gathered [ResultView] in input order.
//
// Any inputs beyond the result itself are expected to be provided by
// specifying the ScoreFunc as a [function literal] that references and
// therefore captures local variables via [lexical closure]. A non-nil error
// aborts the whole batch call that invoked it.
//
// [function literal]: https://go.dev/ref/spec#Function_literals
// [lexical closure]: https://en.wikipedia.org/wiki/Closure_(computer_programming)
type ScoreFunc = func(*ResultView) (float64, error)
