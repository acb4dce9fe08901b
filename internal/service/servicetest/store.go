// Package servicetest provides in-memory implementations of the service
// store and object storage for tests. Transactions are emulated by
// snapshotting the whole state and restoring it when the callback fails.
package servicetest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/krushi/krushi-api/internal/model"
	"github.com/krushi/krushi-api/internal/repository"
	"github.com/krushi/krushi-api/internal/service"
)

type state struct {
	seq          uint64
	users        map[uint64]model.User
	profiles     map[uint64]model.AgronomistProfile // by user id
	sessions     map[uint64]model.AuthSession
	media        map[uint64]model.Media
	crops        map[uint64]model.Crop
	locations    map[uint64]model.Location
	reports      map[uint64]model.DiseaseReport
	reportImages map[uint64][]uint64
}

func newState() *state {
	return &state{
		users:        map[uint64]model.User{},
		profiles:     map[uint64]model.AgronomistProfile{},
		sessions:     map[uint64]model.AuthSession{},
		media:        map[uint64]model.Media{},
		crops:        map[uint64]model.Crop{},
		locations:    map[uint64]model.Location{},
		reports:      map[uint64]model.DiseaseReport{},
		reportImages: map[uint64][]uint64{},
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (st *state) clone() *state {
	c := &state{
		seq:          st.seq,
		users:        copyMap(st.users),
		profiles:     copyMap(st.profiles),
		sessions:     copyMap(st.sessions),
		media:        copyMap(st.media),
		crops:        copyMap(st.crops),
		locations:    copyMap(st.locations),
		reports:      copyMap(st.reports),
		reportImages: make(map[uint64][]uint64, len(st.reportImages)),
	}
	for k, v := range st.reportImages {
		c.reportImages[k] = append([]uint64(nil), v...)
	}
	return c
}

func (st *state) next() uint64 {
	st.seq++
	return st.seq
}

// Store is an in-memory service.Store.
type Store struct {
	mu   sync.Mutex
	st   *state
	fail map[string]error
	now  func() time.Time
}

func NewStore() *Store {
	return &Store{st: newState(), fail: map[string]error{}, now: time.Now}
}

// FailOn makes the named operation (for example "Agronomists.Create")
// return err until cleared with a nil err.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, op)
		return
	}
	s.fail[op] = err
}

// SetNow overrides the clock used for session expiry.
func (s *Store) SetNow(now func() time.Time) { s.now = now }

func (s *Store) Repos() service.Repos {
	return service.Repos{
		Users:       users{s},
		Agronomists: agronomists{s},
		Sessions:    sessions{s},
		Media:       media{s},
		Crops:       crops{s},
		Locations:   locations{s},
		Reports:     reports{s},
	}
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, r service.Repos) error) error {
	s.mu.Lock()
	snap := s.st.clone()
	s.mu.Unlock()
	if err := fn(ctx, s.Repos()); err != nil {
		s.mu.Lock()
		s.st = snap
		s.mu.Unlock()
		return err
	}
	return nil
}

// with runs fn under the lock unless op is set to fail.
func (s *Store) with(op string, fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[op]; err != nil {
		return err
	}
	return fn(s.st)
}

// Counts for assertions.

func (s *Store) UserCount() int { return s.count(func(st *state) int { return len(st.users) }) }
func (s *Store) MediaCount() int { return s.count(func(st *state) int { return len(st.media) }) }
func (s *Store) ProfileCount() int { return s.count(func(st *state) int { return len(st.profiles) }) }
func (s *Store) SessionCount() int { return s.count(func(st *state) int { return len(st.sessions) }) }
func (s *Store) ReportCount() int { return s.count(func(st *state) int { return len(st.reports) }) }

func (s *Store) count(f func(st *state) int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return f(s.st)
}

// Sessions returns a copy of every stored session.
func (s *Store) Sessions() []model.AuthSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.AuthSession, 0, len(s.st.sessions))
	for _, v := range s.st.sessions {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RawUser returns the stored row including the password hash.
func (s *Store) RawUser(id uint64) (model.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.st.users[id]
	return u, ok
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func (st *state) hydrate(u model.User) model.User {
	if u.ProfilePhotoID != nil {
		if m, ok := st.media[*u.ProfilePhotoID]; ok {
			u.ProfilePhoto = &m
		}
	}
	return u
}

func (st *state) deleteMedia(id uint64) {
	delete(st.media, id)
	for uid, u := range st.users {
		if u.ProfilePhotoID != nil && *u.ProfilePhotoID == id {
			u.ProfilePhotoID = nil
			st.users[uid] = u
		}
	}
	for uid, p := range st.profiles {
		if p.IDProofID != nil && *p.IDProofID == id {
			p.IDProofID = nil
			st.profiles[uid] = p
		}
	}
	for rid, ids := range st.reportImages {
		kept := ids[:0]
		for _, m := range ids {
			if m != id {
				kept = append(kept, m)
			}
		}
		st.reportImages[rid] = kept
	}
}

func (st *state) deleteReport(id uint64) {
	delete(st.reports, id)
	delete(st.reportImages, id)
}

func (st *state) withImages(r model.DiseaseReport) model.DiseaseReport {
	r.Images = nil
	for _, id := range st.reportImages[r.ID] {
		if m, ok := st.media[id]; ok {
			r.Images = append(r.Images, m)
		}
	}
	return r
}

type users struct{ s *Store }

func (r users) Create(_ context.Context, u *model.User) error {
	return r.s.with("Users.Create", func(st *state) error {
		for _, ex := range st.users {
			if ex.MobileNumber == u.MobileNumber {
				return repository.ErrDuplicate
			}
		}
		u.ID = st.next()
		u.CreatedAt, u.UpdatedAt = r.s.now(), r.s.now()
		st.users[u.ID] = *u
		return nil
	})
}

func (r users) GetByMobile(_ context.Context, mobile string) (model.User, error) {
	var out model.User
	err := r.s.with("Users.GetByMobile", func(st *state) error {
		for _, u := range st.users {
			if u.MobileNumber == mobile {
				out = st.hydrate(u)
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (r users) GetByID(_ context.Context, id uint64) (model.User, error) {
	var out model.User
	err := r.s.with("Users.GetByID", func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = st.hydrate(u)
		return nil
	})
	return out, err
}

func (r users) list(op string, keep func(model.User) bool) ([]model.User, error) {
	var out []model.User
	err := r.s.with(op, func(st *state) error {
		for _, u := range st.users {
			if keep(u) {
				out = append(out, st.hydrate(u))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, err
}

func (r users) ListByRole(_ context.Context, role model.Role) ([]model.User, error) {
	return r.list("Users.ListByRole", func(u model.User) bool { return u.Role == role })
}

func (r users) ListByRoleInDistrict(_ context.Context, role model.Role, district string) ([]model.User, error) {
	d := norm(district)
	return r.list("Users.ListByRoleInDistrict", func(u model.User) bool { return u.Role == role && norm(u.District) == d })
}

func (r users) UpdateProfile(_ context.Context, u model.User) error {
	return r.s.with("Users.UpdateProfile", func(st *state) error {
		ex, ok := st.users[u.ID]
		if !ok {
			return repository.ErrNotFound
		}
		ex.FullName, ex.District, ex.Taluka, ex.Language = u.FullName, u.District, u.Taluka, u.Language
		ex.Longitude, ex.Latitude = u.Longitude, u.Latitude
		st.users[u.ID] = ex
		return nil
	})
}

func (r users) UpdatePassword(_ context.Context, id uint64, hash string) error {
	return r.s.with("Users.UpdatePassword", func(st *state) error {
		ex, ok := st.users[id]
		if !ok {
			return repository.ErrNotFound
		}
		ex.PasswordHash = hash
		st.users[id] = ex
		return nil
	})
}

func (r users) SetProfilePhoto(_ context.Context, id uint64, mediaID *uint64) error {
	return r.s.with("Users.SetProfilePhoto", func(st *state) error {
		ex, ok := st.users[id]
		if !ok {
			return repository.ErrNotFound
		}
		ex.ProfilePhotoID = mediaID
		st.users[id] = ex
		return nil
	})
}

func (r users) Delete(_ context.Context, id uint64) error {
	return r.s.with("Users.Delete", func(st *state) error {
		if _, ok := st.users[id]; !ok {
			return repository.ErrNotFound
		}
		delete(st.users, id)
		delete(st.profiles, id)
		for sid, sess := range st.sessions {
			if sess.UserID == id {
				delete(st.sessions, sid)
			}
		}
		for cid, c := range st.crops {
			if c.FarmerID == id {
				delete(st.crops, cid)
			}
		}
		for rid, rep := range st.reports {
			if rep.FarmerID == id {
				st.deleteReport(rid)
			} else if rep.AgronomistID != nil && *rep.AgronomistID == id {
				rep.AgronomistID = nil
				st.reports[rid] = rep
			}
		}
		return nil
	})
}

type agronomists struct{ s *Store }

func (r agronomists) Create(_ context.Context, p *model.AgronomistProfile) error {
	return r.s.with("Agronomists.Create", func(st *state) error {
		if _, ok := st.users[p.UserID]; !ok {
			return repository.ErrNotFound
		}
		if _, ok := st.profiles[p.UserID]; ok {
			return repository.ErrDuplicate
		}
		p.ID = st.next()
		if p.Status == "" {
			p.Status = model.AgronomistPending
		}
		if p.Availability == "" {
			p.Availability = model.Available
		}
		st.profiles[p.UserID] = *p
		return nil
	})
}

func (st *state) agronomist(uid uint64) (model.Agronomist, bool) {
	p, ok := st.profiles[uid]
	if !ok {
		return model.Agronomist{}, false
	}
	if p.IDProofID != nil {
		if m, ok := st.media[*p.IDProofID]; ok {
			p.IDProof = &m
		}
	}
	return model.Agronomist{User: st.hydrate(st.users[uid]), Profile: p}, true
}

func (r agronomists) GetByUserID(_ context.Context, userID uint64) (model.Agronomist, error) {
	var out model.Agronomist
	err := r.s.with("Agronomists.GetByUserID", func(st *state) error {
		a, ok := st.agronomist(userID)
		if !ok {
			return repository.ErrNotFound
		}
		out = a
		return nil
	})
	return out, err
}

func (r agronomists) UpdateStatus(_ context.Context, userID uint64, status model.AgronomistStatus) error {
	return r.s.with("Agronomists.UpdateStatus", func(st *state) error {
		p, ok := st.profiles[userID]
		if !ok {
			return repository.ErrNotFound
		}
		p.Status = status
		st.profiles[userID] = p
		return nil
	})
}

func (r agronomists) UpdateProfile(_ context.Context, p model.AgronomistProfile) error {
	return r.s.with("Agronomists.UpdateProfile", func(st *state) error {
		ex, ok := st.profiles[p.UserID]
		if !ok {
			return repository.ErrNotFound
		}
		ex.Qualification, ex.Experience, ex.Availability, ex.Bio = p.Qualification, p.Experience, p.Availability, p.Bio
		st.profiles[p.UserID] = ex
		return nil
	})
}

func (r agronomists) list(op string, keep func(model.Agronomist) bool) ([]model.Agronomist, error) {
	var out []model.Agronomist
	err := r.s.with(op, func(st *state) error {
		for uid := range st.profiles {
			if a, ok := st.agronomist(uid); ok && keep(a) {
				out = append(out, a)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (r agronomists) List(context.Context) ([]model.Agronomist, error) {
	return r.list("Agronomists.List", func(model.Agronomist) bool { return true })
}

func (r agronomists) ListVerifiedInDistrict(_ context.Context, district string, onlyAvailable bool) ([]model.Agronomist, error) {
	d := norm(district)
	return r.list("Agronomists.ListVerifiedInDistrict", func(a model.Agronomist) bool {
		if a.Profile.Status != model.AgronomistVerified || norm(a.District) != d {
			return false
		}
		return !onlyAvailable || a.Profile.Availability == model.Available
	})
}

type sessions struct{ s *Store }

func (r sessions) Create(_ context.Context, sess *model.AuthSession) error {
	return r.s.with("Sessions.Create", func(st *state) error {
		if sess.LastUsedAt.IsZero() || sess.ExpiresAt.IsZero() {
			return fmt.Errorf("insert session: zero timestamp rejected")
		}
		sess.ID = st.next()
		sess.CreatedAt = r.s.now()
		st.sessions[sess.ID] = *sess
		return nil
	})
}

func (r sessions) ListActive(_ context.Context, userID uint64) ([]model.AuthSession, error) {
	var out []model.AuthSession
	err := r.s.with("Sessions.ListActive", func(st *state) error {
		now := r.s.now()
		for _, sess := range st.sessions {
			if sess.UserID == userID && sess.ExpiresAt.After(now) {
				out = append(out, sess)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, err
}

func (r sessions) live(st *state, id uint64, hash string) (model.AuthSession, error) {
	sess, ok := st.sessions[id]
	if !ok || sess.RefreshTokenHash != hash || !sess.ExpiresAt.After(r.s.now()) {
		return model.AuthSession{}, repository.ErrNotFound
	}
	return sess, nil
}

func (r sessions) Touch(_ context.Context, id uint64, hash string) error {
	return r.s.with("Sessions.Touch", func(st *state) error {
		sess, err := r.live(st, id, hash)
		if err != nil {
			return err
		}
		sess.LastUsedAt = r.s.now()
		st.sessions[id] = sess
		return nil
	})
}

func (r sessions) Rotate(_ context.Context, id uint64, oldHash, newHash string, exp time.Time) error {
	return r.s.with("Sessions.Rotate", func(st *state) error {
		sess, err := r.live(st, id, oldHash)
		if err != nil {
			return err
		}
		sess.RefreshTokenHash, sess.ExpiresAt, sess.LastUsedAt = newHash, exp, r.s.now()
		st.sessions[id] = sess
		return nil
	})
}

func (r sessions) DeleteByUser(_ context.Context, userID uint64) (int64, error) {
	var n int64
	err := r.s.with("Sessions.DeleteByUser", func(st *state) error {
		for id, sess := range st.sessions {
			if sess.UserID == userID {
				delete(st.sessions, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r sessions) PurgeExpired(context.Context) (int64, error) {
	var n int64
	err := r.s.with("Sessions.PurgeExpired", func(st *state) error {
		now := r.s.now()
		for id, sess := range st.sessions {
			if !sess.ExpiresAt.After(now) {
				delete(st.sessions, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

type media struct{ s *Store }

func (r media) Create(_ context.Context, m *model.Media) error {
	return r.s.with("Media.Create", func(st *state) error {
		m.ID = st.next()
		m.CreatedAt = r.s.now()
		st.media[m.ID] = *m
		return nil
	})
}

func (r media) GetByID(_ context.Context, id uint64) (model.Media, error) {
	var out model.Media
	err := r.s.with("Media.GetByID", func(st *state) error {
		m, ok := st.media[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = m
		return nil
	})
	return out, err
}

func (r media) ListByOwner(_ context.Context, userID uint64) ([]model.Media, error) {
	var out []model.Media
	err := r.s.with("Media.ListByOwner", func(st *state) error {
		for _, m := range st.media {
			if m.OwnerID != nil && *m.OwnerID == userID {
				out = append(out, m)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (r media) Delete(_ context.Context, id uint64) error {
	return r.s.with("Media.Delete", func(st *state) error {
		if _, ok := st.media[id]; !ok {
			return repository.ErrNotFound
		}
		st.deleteMedia(id)
		return nil
	})
}

func (r media) DeleteByOwner(_ context.Context, userID uint64) error {
	return r.s.with("Media.DeleteByOwner", func(st *state) error {
		for id, m := range st.media {
			if m.OwnerID != nil && *m.OwnerID == userID {
				st.deleteMedia(id)
			}
		}
		return nil
	})
}

type crops struct{ s *Store }

func (r crops) Create(_ context.Context, c *model.Crop) error {
	return r.s.with("Crops.Create", func(st *state) error {
		c.ID = st.next()
		c.CreatedAt = r.s.now()
		st.crops[c.ID] = *c
		return nil
	})
}

func (r crops) GetOwned(_ context.Context, id, farmerID uint64) (model.Crop, error) {
	var out model.Crop
	err := r.s.with("Crops.GetOwned", func(st *state) error {
		c, ok := st.crops[id]
		if !ok || c.FarmerID != farmerID {
			return repository.ErrNotFound
		}
		out = c
		return nil
	})
	return out, err
}

func (r crops) ListByFarmer(_ context.Context, farmerID uint64) ([]model.Crop, error) {
	var out []model.Crop
	err := r.s.with("Crops.ListByFarmer", func(st *state) error {
		for _, c := range st.crops {
			if c.FarmerID == farmerID {
				out = append(out, c)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, err
}

func (r crops) Delete(_ context.Context, id, farmerID uint64) error {
	return r.s.with("Crops.Delete", func(st *state) error {
		c, ok := st.crops[id]
		if !ok || c.FarmerID != farmerID {
			return repository.ErrNotFound
		}
		delete(st.crops, id)
		for rid, rep := range st.reports {
			if rep.CropID != nil && *rep.CropID == id {
				rep.CropID = nil
				st.reports[rid] = rep
			}
		}
		return nil
	})
}

type locations struct{ s *Store }

func (r locations) Create(_ context.Context, l *model.Location) error {
	return r.s.with("Locations.Create", func(st *state) error {
		for _, ex := range st.locations {
			if ex.District == l.District && ex.Taluka == l.Taluka {
				return repository.ErrDuplicate
			}
		}
		l.ID = st.next()
		l.CreatedAt = r.s.now()
		st.locations[l.ID] = *l
		return nil
	})
}

func (r locations) List(context.Context) ([]model.Location, error) {
	var out []model.Location
	err := r.s.with("Locations.List", func(st *state) error {
		for _, l := range st.locations {
			out = append(out, l)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].District != out[j].District {
			return out[i].District < out[j].District
		}
		return out[i].Taluka < out[j].Taluka
	})
	return out, err
}

type reports struct{ s *Store }

func (r reports) Create(_ context.Context, rep *model.DiseaseReport) error {
	return r.s.with("Reports.Create", func(st *state) error {
		if rep.Status == "" {
			rep.Status = model.ReportPendingAction
		}
		if rep.Language == "" {
			rep.Language = model.ReportEnglish
		}
		rep.ID = st.next()
		rep.CreatedAt, rep.UpdatedAt = r.s.now(), r.s.now()
		st.reports[rep.ID] = *rep
		return nil
	})
}

func (r reports) AttachImages(_ context.Context, reportID uint64, mediaIDs []uint64) error {
	return r.s.with("Reports.AttachImages", func(st *state) error {
		if _, ok := st.reports[reportID]; !ok {
			return repository.ErrNotFound
		}
		st.reportImages[reportID] = append(st.reportImages[reportID], mediaIDs...)
		return nil
	})
}

func (r reports) GetByID(_ context.Context, id uint64) (model.DiseaseReport, error) {
	var out model.DiseaseReport
	err := r.s.with("Reports.GetByID", func(st *state) error {
		rep, ok := st.reports[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = st.withImages(rep)
		return nil
	})
	return out, err
}

func (r reports) ListByFarmer(_ context.Context, farmerID uint64) ([]model.DiseaseReport, error) {
	var out []model.DiseaseReport
	err := r.s.with("Reports.ListByFarmer", func(st *state) error {
		for _, rep := range st.reports {
			if rep.FarmerID == farmerID {
				out = append(out, st.withImages(rep))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, err
}

func (r reports) ImageMedia(_ context.Context, reportID uint64) ([]model.Media, error) {
	var out []model.Media
	err := r.s.with("Reports.ImageMedia", func(st *state) error {
		out = st.withImages(model.DiseaseReport{ID: reportID}).Images
		return nil
	})
	return out, err
}

func (r reports) ImageKeysByFarmer(_ context.Context, farmerID uint64) ([]string, error) {
	var out []string
	err := r.s.with("Reports.ImageKeysByFarmer", func(st *state) error {
		for _, rep := range st.reports {
			if rep.FarmerID == farmerID && rep.ImageKey != nil {
				out = append(out, *rep.ImageKey)
			}
		}
		return nil
	})
	sort.Strings(out)
	return out, err
}

func (r reports) MarkTreated(_ context.Context, id, farmerID uint64, notes *string) error {
	return r.s.with("Reports.MarkTreated", func(st *state) error {
		rep, ok := st.reports[id]
		if !ok || rep.FarmerID != farmerID {
			return repository.ErrNotFound
		}
		rep.Status = model.ReportTreated
		if notes != nil {
			rep.FarmerNotes = *notes
		}
		st.reports[id] = rep
		return nil
	})
}

func (r reports) Delete(_ context.Context, id, farmerID uint64) error {
	return r.s.with("Reports.Delete", func(st *state) error {
		rep, ok := st.reports[id]
		if !ok || rep.FarmerID != farmerID {
			return repository.ErrNotFound
		}
		st.deleteReport(id)
		return nil
	})
}

func (r reports) AssignAgronomist(_ context.Context, reportID, agronomistID uint64) (bool, error) {
	var done bool
	err := r.s.with("Reports.AssignAgronomist", func(st *state) error {
		rep, ok := st.reports[reportID]
		if !ok || rep.AgronomistID != nil {
			return nil
		}
		rep.AgronomistID = &agronomistID
		st.reports[reportID] = rep
		done = true
		return nil
	})
	return done, err
}

var _ service.Store = (*Store)(nil)
