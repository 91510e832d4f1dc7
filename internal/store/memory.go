// Package store provides storage backends for ClinicPipe.
//
// This file implements an in-memory store used when no DSN is configured and
// throughout the handler tests. It enforces the same slot-uniqueness rule as
// the SQL backends.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ClinicPipe/ClinicPipe/internal/models"
	"github.com/google/uuid"
)

type InMemoryStore struct {
	mu           sync.RWMutex
	appointments map[string]models.Appointment
	services     map[string]models.Service
	categories   map[string]models.Category
	windows      map[string]models.AvailabilityWindow
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		appointments: make(map[string]models.Appointment),
		services:     make(map[string]models.Service),
		categories:   make(map[string]models.Category),
		windows:      make(map[string]models.AvailabilityWindow),
	}
}

func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) CreateAppointment(ctx context.Context, appt models.Appointment) (models.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	if appt.Status == "" {
		appt.Status = models.AppointmentStatusPending
	}
	if appt.ProviderType == "" {
		appt.ProviderType = models.ProviderTypeDoctor
	}
	// Same arbitration as the SQL unique index.
	for _, existing := range s.appointments {
		if existing.Status != models.AppointmentStatusCancelled &&
			existing.TenantID == appt.TenantID &&
			existing.ProviderID == appt.ProviderID &&
			existing.Date == appt.Date &&
			existing.StartTime == appt.StartTime {
			return appt, ErrSlotConflict
		}
	}
	s.appointments[appt.ID] = appt
	return appt, nil
}

func (s *InMemoryStore) UpdateAppointment(ctx context.Context, id string, patch AppointmentPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.appointments[id]
	if !ok {
		return ErrNotFound
	}
	if patch.Status != nil {
		appt.Status = *patch.Status
	}
	if patch.Date != nil {
		appt.Date = *patch.Date
	}
	if patch.StartTime != nil {
		appt.StartTime = *patch.StartTime
	}
	if patch.EndTime != nil {
		appt.EndTime = *patch.EndTime
	}
	if patch.ProviderID != nil {
		appt.ProviderID = *patch.ProviderID
	}
	s.appointments[id] = appt
	return nil
}

func (s *InMemoryStore) GetAppointment(ctx context.Context, id string) (*models.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if appt, ok := s.appointments[id]; ok {
		a := appt
		return &a, nil
	}
	return nil, nil
}

func (s *InMemoryStore) ListProviderAppointments(ctx context.Context, tenantID, providerID, date string) ([]models.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Appointment
	for _, appt := range s.appointments {
		if appt.TenantID == tenantID && appt.ProviderID == providerID && appt.Date == date {
			out = append(out, appt)
		}
	}
	sortAppointments(out)
	return out, nil
}

func (s *InMemoryStore) ListAppointmentsOnDate(ctx context.Context, date string) ([]models.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Appointment
	for _, appt := range s.appointments {
		if appt.Date == date {
			out = append(out, appt)
		}
	}
	sortAppointments(out)
	return out, nil
}

func sortAppointments(appts []models.Appointment) {
	sort.Slice(appts, func(i, j int) bool { return appts[i].StartTime < appts[j].StartTime })
}

func (s *InMemoryStore) CreateService(ctx context.Context, svc models.Service) (models.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if svc.ID == "" {
		svc.ID = uuid.NewString()
	}
	s.services[svc.ID] = svc
	return svc, nil
}

func (s *InMemoryStore) UpdateService(ctx context.Context, svc models.Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.services[svc.ID]; !ok {
		return ErrNotFound
	}
	s.services[svc.ID] = svc
	return nil
}

func (s *InMemoryStore) DeleteService(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.services[id]; !ok {
		return ErrNotFound
	}
	delete(s.services, id)
	return nil
}

func (s *InMemoryStore) GetService(ctx context.Context, id string) (*models.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if svc, ok := s.services[id]; ok {
		out := svc
		return &out, nil
	}
	return nil, nil
}

func (s *InMemoryStore) ListServices(ctx context.Context, tenantID string) ([]models.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Service
	for _, svc := range s.services {
		if svc.TenantID == tenantID {
			out = append(out, svc)
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListServicesByCategory(ctx context.Context, categoryID string) ([]models.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Service
	for _, svc := range s.services {
		if svc.CategoryID == categoryID {
			out = append(out, svc)
		}
	}
	return out, nil
}

func (s *InMemoryStore) CreateCategory(ctx context.Context, cat models.Category) (models.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cat.ID == "" {
		cat.ID = uuid.NewString()
	}
	s.categories[cat.ID] = cat
	return cat, nil
}

func (s *InMemoryStore) UpdateCategory(ctx context.Context, cat models.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.categories[cat.ID]; !ok {
		return ErrNotFound
	}
	s.categories[cat.ID] = cat
	return nil
}

func (s *InMemoryStore) DeleteCategory(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.categories[id]; !ok {
		return ErrNotFound
	}
	delete(s.categories, id)
	return nil
}

func (s *InMemoryStore) GetCategory(ctx context.Context, id string) (*models.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if cat, ok := s.categories[id]; ok {
		out := cat
		return &out, nil
	}
	return nil, nil
}

func (s *InMemoryStore) ListCategories(ctx context.Context, tenantID string) ([]models.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Category
	for _, cat := range s.categories {
		if cat.TenantID == tenantID {
			out = append(out, cat)
		}
	}
	return out, nil
}

func windowKey(tenantID, providerID string, weekday int) string {
	return fmt.Sprintf("%s|%s|%d", tenantID, providerID, weekday)
}

func (s *InMemoryStore) UpsertAvailabilityWindow(ctx context.Context, win models.AvailabilityWindow) (models.AvailabilityWindow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if win.ID == "" {
		win.ID = uuid.NewString()
	}
	s.windows[windowKey(win.TenantID, win.ProviderID, win.Weekday)] = win
	return win, nil
}

func (s *InMemoryStore) GetAvailabilityWindow(ctx context.Context, tenantID, providerID string, weekday int) (*models.AvailabilityWindow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if win, ok := s.windows[windowKey(tenantID, providerID, weekday)]; ok {
		out := win
		return &out, nil
	}
	return nil, nil
}

func (s *InMemoryStore) ListAvailabilityWindows(ctx context.Context, tenantID, providerID string) ([]models.AvailabilityWindow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.AvailabilityWindow
	for _, win := range s.windows {
		if win.TenantID == tenantID && win.ProviderID == providerID {
			out = append(out, win)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Weekday < out[j].Weekday })
	return out, nil
}
