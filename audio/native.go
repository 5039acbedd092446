/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package audio

import (
	"encoding/binary"

	"github.com/ravenna-audio/ravennad/hostendian"
)

// NativeOrder is the machine's own byte order, used when decoding into or
// encoding out of in-memory sample buffers (as opposed to the big-endian
// wire formats AES67 streams always carry).
var NativeOrder binary.ByteOrder = hostendian.Order
