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
	"sync"

	"github.com/carverauto/bthost/pkg/models"
)

// Registry resolves profile services. A profile with no registered service
// is an absent optional dependency: Get returns nil and callers treat it as
// nothing to do.
type Registry struct {
	mu       sync.RWMutex
	services map[models.Profile]Service
}

func NewRegistry() *Registry {
	return &Registry{services: make(map[models.Profile]Service)}
}

// Register installs the service under its profile id, replacing any previous
// registration.
func (r *Registry) Register(svc Service) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.services[svc.Profile()] = svc
}

// Unregister removes the service for the profile.
func (r *Registry) Unregister(profile models.Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.services, profile)
}

// Get returns the service for the profile, nil when none is registered.
func (r *Registry) Get(profile models.Profile) Service {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.services[profile]
}

// All returns every registered service.
func (r *Registry) All() []Service {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Service, 0, len(r.services))
	for _, svc := range r.services {
		out = append(out, svc)
	}

	return out
}

// StopAll stops every registered service and clears the registry.
func (r *Registry) StopAll() {
	r.mu.Lock()
	services := r.services
	r.services = make(map[models.Profile]Service)
	r.mu.Unlock()

	for _, svc := range services {
		svc.Stop()
	}
}
