// =================================================================================
//
//			split51 - rear-channel loopback router
//
//		 split51 captures the rear surround pair from a primary playback
//	  device and routes it to a second physical stereo output.
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
package main

import "github.com/tatsu-t/split51/cmd/split51"

func main() {
	split51.Execute()
}
