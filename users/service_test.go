package users_test

import (
	"context"
	"strings"
	"testing"

	"github.com/jrsteele09/equiptrack-client/auth"
	"github.com/jrsteele09/equiptrack-client/events"
	"github.com/jrsteele09/equiptrack-client/httpclient"
	"github.com/jrsteele09/equiptrack-client/internal/fakeapi"
	"github.com/jrsteele09/equiptrack-client/internal/utils"
	"github.com/jrsteele09/equiptrack-client/users"
	"github.com/stretchr/testify/require"
)

type testFixture struct {
	api     *fakeapi.Server
	service *users.Service
	manager *auth.Manager
	fired   []string
}

func newFixture(t *testing.T, role users.RoleType) *testFixture {
	t.Helper()
	api := fakeapi.Start()
	t.Cleanup(api.Close)
	api.AddUser(users.Profile{Username: "root", Email: "root@example.com", Role: users.RoleAdmin, Active: true}, "R00tPassword")
	api.AddUser(users.Profile{Username: "stu", Email: "stu@example.com", FirstName: "Stu", Role: users.RoleStudent, Active: true}, "Stud3ntPass")

	client := httpclient.New(httpclient.DefaultConfig(api.URL()))
	m, err := auth.NewManager(client, auth.Persistence{})
	require.NoError(t, err)

	creds := auth.Credentials{Email: "root@example.com", Password: "R00tPassword"}
	if role == users.RoleStudent {
		creds = auth.Credentials{Email: "stu@example.com", Password: "Stud3ntPass"}
	}
	_, err = m.Login(context.Background(), creds)
	require.NoError(t, err)

	f := &testFixture{api: api, manager: m, service: users.NewService(client, client.Bus())}
	_, err = client.Bus().Subscribe("user:*", func(evt events.Event) (any, error) {
		f.fired = append(f.fired, evt.Name)
		return nil, nil
	})
	require.NoError(t, err)
	return f
}

func TestAdminManagesUsers(t *testing.T) {
	f := newFixture(t, users.RoleAdmin)
	ctx := context.Background()

	_, err := f.service.Create(ctx, users.NewUser{Username: "weak", Email: "weak@example.com", Password: "password"})
	require.ErrorIs(t, err, users.ErrWeakPassword)

	created, err := f.service.Create(ctx, users.NewUser{Username: "tom", Email: "tom@example.com", Password: "T0mPassword", Role: users.RoleTeacher})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Equal(t, users.RoleTeacher, created.Role)

	page, err := f.service.List(ctx, users.ListParams{Role: users.RoleTeacher})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	require.Equal(t, "tom", page.Items[0].Username)

	updated, err := f.service.Update(ctx, created.ID, map[string]any{"department": "Physics"})
	require.NoError(t, err)
	require.Equal(t, "Physics", updated.Department)
	require.Equal(t, created.ID, updated.ID)

	disabled, err := f.service.SetActive(ctx, created.ID, false)
	require.NoError(t, err)
	require.False(t, disabled.Active)

	page, err = f.service.List(ctx, users.ListParams{Active: utils.Ptr(false)})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)

	require.NoError(t, f.service.Delete(ctx, created.ID))
	_, err = f.service.Get(ctx, created.ID)
	require.Equal(t, httpclient.CategoryNotFound, httpclient.CategoryOf(err))

	require.Equal(t, []string{events.UserCreated, events.UserUpdated, events.UserUpdated, events.UserDeleted}, f.fired)
}

func TestExportUsers(t *testing.T) {
	f := newFixture(t, users.RoleAdmin)

	dl, err := f.service.ExportCSV(context.Background(), users.ListParams{Search: "stu"})
	require.NoError(t, err)
	require.Equal(t, "users-export.csv", dl.FileName)
	lines := strings.Split(strings.TrimSpace(string(dl.Data)), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[1], "stu@example.com")
}

func TestStudentIsForbiddenFromAdministration(t *testing.T) {
	f := newFixture(t, users.RoleStudent)

	_, err := f.service.List(context.Background(), users.ListParams{})
	var he *httpclient.HTTPError
	require.ErrorAs(t, err, &he)
	require.Equal(t, httpclient.CategoryForbidden, httpclient.CategoryOf(err))
}

func TestOwnProfile(t *testing.T) {
	f := newFixture(t, users.RoleStudent)
	ctx := context.Background()

	me, err := f.service.Me(ctx)
	require.NoError(t, err)
	require.Equal(t, "stu", me.Username)
	require.Equal(t, "Stu", me.FullName())

	updated, err := f.service.UpdateMe(ctx, map[string]any{"last_name": "Dent", "role": "admin"})
	require.NoError(t, err)
	require.Equal(t, "Stu Dent", updated.FullName())
	require.Equal(t, users.RoleStudent, updated.Role)
	require.Equal(t, []string{events.UserUpdated}, f.fired)

	err = f.service.ChangePassword(ctx, "wrong", "N3wStudentPass")
	var ve *httpclient.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, []string{"currentPassword"}, ve.Fields())

	require.ErrorIs(t, f.service.ChangePassword(ctx, "Stud3ntPass", "weak"), users.ErrWeakPassword)
	require.NoError(t, f.service.ChangePassword(ctx, "Stud3ntPass", "N3wStudentPass"))

	_, err = f.manager.Login(ctx, auth.Credentials{Email: "stu@example.com", Password: "N3wStudentPass"})
	require.NoError(t, err)
}
