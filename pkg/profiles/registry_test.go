/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package profiles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/bthost/pkg/models"
)

type stubService struct {
	profile models.Profile
	stopped bool
}

func (s *stubService) Profile() models.Profile              { return s.profile }
func (s *stubService) Connect(models.Address) bool          { return true }
func (s *stubService) Disconnect(models.Address) bool       { return true }
func (s *stubService) Stop()                                { s.stopped = true }
func (s *stubService) ConnectedDevices() []models.Address   { return nil }
func (s *stubService) SetConnectionPolicy(models.Address, models.ConnectionPolicy) bool {
	return true
}
func (s *stubService) ConnectionPolicy(models.Address) models.ConnectionPolicy {
	return models.PolicyUnknown
}
func (s *stubService) ConnectionState(models.Address) models.ConnectionState {
	return models.StateDisconnected
}

func TestRegistryGetMissingProfile(t *testing.T) {
	r := NewRegistry()
	assert.Nil(t, r.Get(models.ProfileA2DPSink))
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	svc := &stubService{profile: models.ProfileA2DPSink}

	r.Register(svc)
	require.Equal(t, Service(svc), r.Get(models.ProfileA2DPSink))
	assert.Nil(t, r.Get(models.ProfileHearingAid))
	assert.Len(t, r.All(), 1)

	r.Unregister(models.ProfileA2DPSink)
	assert.Nil(t, r.Get(models.ProfileA2DPSink))
}

func TestRegistryStopAll(t *testing.T) {
	r := NewRegistry()
	a := &stubService{profile: models.ProfileA2DPSink}
	b := &stubService{profile: models.ProfileHearingAid}

	r.Register(a)
	r.Register(b)
	r.StopAll()

	assert.True(t, a.stopped)
	assert.True(t, b.stopped)
	assert.Empty(t, r.All())
}
