// Package testutil — общая обвязка тестов: БД в памяти и фикстуры.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"smartinlet/internal/access"
	"smartinlet/internal/logs"
	"smartinlet/internal/models"
	"smartinlet/internal/repo"
	"smartinlet/internal/secrets"
)

// SetupTestDB открывает отдельную sqlite-базу в памяти со схемой и внешними ключами.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	logs.Discard()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

// Hasher: дешёвый argon2id для тестов.
func Hasher() *secrets.Service {
	s, _ := secrets.New(secrets.AlgArgon2id)
	return s.WithParams(secrets.Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 16, SaltLen: 8}, 4)
}

// Clock: управляемые часы.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// As: контекст от имени пользователя.
func As(u *models.User) context.Context {
	return access.WithIdentity(context.Background(), access.IdentityOf(u))
}

// Fixtures создаёт записи напрямую через хранилища, в обход сервисов.
type Fixtures struct {
	t      *testing.T
	Stores *repo.Stores
	Hasher secrets.Hasher
}

func NewFixtures(t *testing.T, db *gorm.DB) *Fixtures {
	return &Fixtures{t: t, Stores: repo.New(db), Hasher: Hasher()}
}

func (f *Fixtures) User(username string) *models.User {
	f.t.Helper()
	hash, _ := f.Hasher.Hash("password")
	u := &models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		IsActivated:  true,
		RegisteredAt: time.Now().UTC(),
	}
	if err := f.Stores.Users.Create(context.Background(), u); err != nil {
		f.t.Fatalf("create user %s: %v", username, err)
	}
	return u
}

func (f *Fixtures) Admin(username string) *models.User {
	f.t.Helper()
	u := f.User(username)
	u.CanAdministrateDevices = true
	u.CanAdministrateUsers = true
	err := f.Stores.Users.Update(context.Background(), u.ID, map[string]any{
		"can_administrate_devices": true,
		"can_administrate_users":   true,
	})
	if err != nil {
		f.t.Fatalf("promote %s: %v", username, err)
	}
	return u
}

// Group создаёт группу и строку участника-владельца с полными правами.
func (f *Fixtures) Group(name string, owner *models.User, allowUserOffers bool) *models.Group {
	f.t.Helper()
	ctx := context.Background()
	g := &models.Group{Name: name, OwnerID: owner.ID, JoinOffersFromUsersAllowed: allowUserOffers}
	if err := f.Stores.Groups.Create(ctx, g); err != nil {
		f.t.Fatalf("create group %s: %v", name, err)
	}
	f.Member(g, owner, true, true)
	return g
}

func (f *Fixtures) Member(g *models.Group, u *models.User, editMembers, editDevices bool) *models.GroupMember {
	f.t.Helper()
	m := &models.GroupMember{GroupID: g.ID, UserID: u.ID, CanEditMembers: editMembers, CanEditDevices: editDevices}
	if err := f.Stores.Members.Create(context.Background(), m); err != nil {
		f.t.Fatalf("add member %s to %s: %v", u.Username, g.Name, err)
	}
	return m
}

// Inlet: незанятый клапан в ручном режиме с кодом доступа code.
func (f *Fixtures) Inlet(code string) *models.InletDevice {
	f.t.Helper()
	hash, _ := f.Hasher.Hash(code)
	d := &models.InletDevice{
		AccessCode:  hash,
		Name:        models.DefaultInletName,
		ControlType: models.ControlManual,
		UpdatedAt:   time.Now().UTC(),
	}
	if err := f.Stores.Inlets.Create(context.Background(), d); err != nil {
		f.t.Fatalf("create inlet: %v", err)
	}
	return d
}

// Sensor: незанятый датчик со значениями по умолчанию.
func (f *Fixtures) Sensor(kind models.DeviceKind, code string) *models.Sensor {
	f.t.Helper()
	hash, _ := f.Hasher.Hash(code)
	s := &models.Sensor{Kind: kind, AccessCode: hash, UpdatedAt: time.Now().UTC()}
	if kind == models.KindAir {
		s.Name, s.Reading, s.LimitToOpen, s.LimitToClose = models.DefaultAirName, models.DefaultAqi, models.DefaultAqiToOpen, models.DefaultAqiToClose
	} else {
		s.Name, s.Reading, s.LimitToOpen, s.LimitToClose = models.DefaultTempName, models.DefaultKelvins, models.DefaultKelvinToOpen, models.DefaultKelvinToClose
	}
	if err := f.Stores.Sensors.Create(context.Background(), s); err != nil {
		f.t.Fatalf("create %s sensor: %v", kind, err)
	}
	return s
}

// ClaimInlet / ClaimSensor — прямое присвоение группы.
func (f *Fixtures) ClaimInlet(d *models.InletDevice, g *models.Group) {
	f.t.Helper()
	if err := f.Stores.Inlets.Update(context.Background(), d.ID, map[string]any{"group_id": g.ID}); err != nil {
		f.t.Fatalf("claim inlet: %v", err)
	}
	d.GroupID = &g.ID
}

func (f *Fixtures) ClaimSensor(s *models.Sensor, g *models.Group) {
	f.t.Helper()
	if err := f.Stores.Sensors.SetGroup(context.Background(), s.Kind, s.ID, &g.ID, time.Now().UTC()); err != nil {
		f.t.Fatalf("claim sensor: %v", err)
	}
	s.GroupID = &g.ID
}

func (f *Fixtures) ReloadInlet(id uint) *models.InletDevice {
	f.t.Helper()
	d, err := f.Stores.Inlets.Get(context.Background(), id)
	if err != nil {
		f.t.Fatalf("reload inlet %d: %v", id, err)
	}
	return d
}

func (f *Fixtures) ReloadSensor(kind models.DeviceKind, id uint) *models.Sensor {
	f.t.Helper()
	s, err := f.Stores.Sensors.Get(context.Background(), kind, id)
	if err != nil {
		f.t.Fatalf("reload %s sensor %d: %v", kind, id, err)
	}
	return s
}

// CheckBindings проверяет согласованность режимов и симметрию привязок во всей базе.
// Связанные клапан и датчик всегда в одной группе.
func (f *Fixtures) CheckBindings(db *gorm.DB) {
	f.t.Helper()
	var inlets []models.InletDevice
	if err := db.Find(&inlets).Error; err != nil {
		f.t.Fatalf("load inlets: %v", err)
	}
	for _, d := range inlets {
		if err := d.CheckBinding(); err != nil {
			f.t.Errorf("%v", err)
		}
		for _, kind := range []models.DeviceKind{models.KindAir, models.KindTemp} {
			if sid := d.SensorID(kind); sid != nil {
				s := f.ReloadSensor(kind, *sid)
				if s.InletDeviceID == nil || *s.InletDeviceID != d.ID {
					f.t.Errorf("inlet %d -> %s sensor %d, but sensor points to %v", d.ID, kind, *sid, s.InletDeviceID)
				}
				if !sameGroup(d.GroupID, s.GroupID) {
					f.t.Errorf("inlet %d in group %v bound to %s sensor %d in group %v", d.ID, d.GroupID, kind, *sid, s.GroupID)
				}
			}
		}
		if d.IsBlocked && (d.GroupID != nil || d.AirSensorID != nil || d.TempSensorID != nil) {
			f.t.Errorf("blocked inlet %d still claimed or bound", d.ID)
		}
	}
	var air []models.AirSensor
	var temp []models.TempSensor
	if err := db.Find(&air).Error; err != nil {
		f.t.Fatalf("load air sensors: %v", err)
	}
	if err := db.Find(&temp).Error; err != nil {
		f.t.Fatalf("load temp sensors: %v", err)
	}
	sensors := make([]*models.Sensor, 0, len(air)+len(temp))
	for i := range air {
		sensors = append(sensors, air[i].AsSensor())
	}
	for i := range temp {
		sensors = append(sensors, temp[i].AsSensor())
	}
	for _, s := range sensors {
		if s.IsBlocked && (s.GroupID != nil || s.InletDeviceID != nil) {
			f.t.Errorf("blocked %s sensor %d still claimed or bound", s.Kind, s.ID)
		}
		if s.InletDeviceID == nil {
			continue
		}
		d := f.ReloadInlet(*s.InletDeviceID)
		if sid := d.SensorID(s.Kind); sid == nil || *sid != s.ID {
			f.t.Errorf("%s sensor %d -> inlet %d, but inlet points to %v", s.Kind, s.ID, d.ID, sid)
		}
	}
}

func sameGroup(a, b *uint) bool {
	return a != nil && b != nil && *a == *b
}
