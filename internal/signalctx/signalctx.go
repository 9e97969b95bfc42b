// =================================================================================
//
//			split51 - rear-channel loopback router
//
//			Licensed under the Apache License, Version 2.0 (the "License");
//			you may not use this file except in compliance with the License.
//			You may obtain a copy of the License at
//
//			     http://www.apache.org/licenses/LICENSE-2.0
//
//			Unless required by applicable law or agreed to in writing, software
//			distributed under the License is distributed on an "AS IS" BASIS,
//			WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//			See the License for the specific language governing permissions and
//			limitations under the License.
//
// =================================================================================

// Package signalctx wires OS termination signals to a shutdown callback
// run on the control thread.
package signalctx

import (
	"os"
	"os/signal"
	"syscall"
)

// CatchInterrupt invokes callback once when SIGINT or SIGTERM arrives,
// then stops intercepting further signals of that kind (a second Ctrl-C
// falls through to the default OS behavior).
func CatchInterrupt(callback func()) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		signal.Stop(c)
		callback()
	}()
}
