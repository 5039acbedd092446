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

package dnssd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMockBrowserBrowseForRecordsType(t *testing.T) {
	b := NewMockBrowser()
	require.NoError(t, b.BrowseFor(ServiceTypeRTSP))
	require.Equal(t, []string{ServiceTypeRTSP}, b.BrowsedTypes())
}

func TestMockBrowserEmitsResolvedAndRemoved(t *testing.T) {
	b := NewMockBrowser()

	var resolved, removed ServiceDescription
	b.Resolved().Subscribe(func(d ServiceDescription) { resolved = d })
	b.Removed().Subscribe(func(d ServiceDescription) { removed = d })

	desc := ServiceDescription{Fullname: "studio1._ravenna_session._sub._rtsp._tcp.local.", Host: "10.0.0.5", Port: 8080}
	b.SimulateResolved(desc)
	require.Equal(t, desc, resolved)

	b.SimulateRemoved(desc)
	require.Equal(t, desc, removed)
}

func TestMockBrowserSuppressesEventsAfterClose(t *testing.T) {
	b := NewMockBrowser()
	var count int
	b.Resolved().Subscribe(func(ServiceDescription) { count++ })

	require.NoError(t, b.Close())
	b.SimulateResolved(ServiceDescription{Name: "x"})
	require.Equal(t, 0, count)
}

func TestMockAdvertiserTracksAdvertiseAndWithdraw(t *testing.T) {
	a := NewMockAdvertiser()
	require.Nil(t, a.Advertised())

	require.NoError(t, a.Advertise("studio1", ServiceTypeRTSP, 554, TxtRecord{"txtvers": "1"}))
	adv := a.Advertised()
	require.NotNil(t, adv)
	require.Equal(t, "studio1", adv.Name)
	require.Equal(t, 554, adv.Port)

	require.NoError(t, a.Withdraw())
	require.Nil(t, a.Advertised())
}

func TestTxtRoundTrip(t *testing.T) {
	txt := TxtRecord{"txtvers": "1", "api_version": "1.0"}
	round := txtToMap(mapToTxt(txt))
	require.Equal(t, txt, round)
}

func TestTxtEntryWithoutEqualsBecomesEmptyValue(t *testing.T) {
	m := txtToMap([]string{"flag"})
	v, ok := m["flag"]
	require.True(t, ok)
	require.Empty(t, v)
}
