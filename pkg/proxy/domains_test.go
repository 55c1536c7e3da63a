package proxy

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/channelize/channelize-go/pkg/channel"
	"github.com/channelize/channelize-go/pkg/hub"
	"github.com/channelize/channelize-go/pkg/wire"
)

func frame(t *testing.T, event string, v any) hub.Frame {
	t.Helper()
	msg, err := wire.EncodeEvent(wire.JSON, event, v)
	require.NoError(t, err)
	f, err := hub.NewFrame(wire.JSON, msg, "conn-1")
	require.NoError(t, err)
	return f
}

func TestEventsDomain(t *testing.T) {
	d := EventsDomain()
	assert.Equal(t, "events", d.Name)
	assert.Equal(t, TagEvents, d.Tag)

	assert.ErrorIs(t, d.Validate(EventsArgs{}), ErrNoSystemIDs)
	assert.ErrorIs(t, d.Validate(EventsArgs{SystemIDs: []string{"A", ""}}), ErrBlankID)
	assert.NoError(t, d.Validate(EventsArgs{SystemIDs: []string{"A", "B"}}))

	args := EventsArgs{SystemIDs: []string{"A", "B"}}
	assert.Equal(t, []string{"A", "B"}, d.Keys(args))
	assert.Equal(t, channel.Request{Body: map[string][]string{"systemIds": {"A", "B"}}}, d.Request(args))

	key, reply, err := d.Decode(frame(t, EventEvents, map[string]any{
		"RequestId": "1", "RequestFor": TagEvents, "SystemId": "B",
	}))
	require.NoError(t, err)
	assert.Equal(t, "B", key)
	assert.Equal(t, "1", reply.RequestID)
}

func TestCommandsDomain(t *testing.T) {
	d := CommandsDomain()
	assert.ErrorIs(t, d.Validate(CommandsArgs{}), ErrNoSystemID)
	assert.NoError(t, d.Validate(CommandsArgs{SystemID: "S1"}))
	assert.Equal(t, []string{"S1"}, d.Request(CommandsArgs{SystemID: "S1"}).Path)
}

func TestSessionsDomain(t *testing.T) {
	d := SessionsDomain()
	assert.Empty(t, d.Request(SessionsArgs{}).Query)
	assert.Equal(t, url.Values{"userId": {"u1"}}, d.Request(SessionsArgs{UserID: "u1"}).Query)
}

func TestOperatorTasksDomain(t *testing.T) {
	d := OperatorTasksDomain()
	assert.Equal(t, "operator-tasks", d.Name)
	assert.Equal(t, EventOperatorTasks, d.Event)
	assert.ErrorIs(t, d.Validate(OperatorTasksArgs{}), ErrNoTaskIDs)

	args := OperatorTasksArgs{TaskIDs: []string{"t1"}}
	assert.Equal(t, channel.Request{Body: map[string][]string{"taskIds": {"t1"}}}, d.Request(args))

	key, _, err := d.Decode(frame(t, EventOperatorTasks, map[string]any{
		"RequestId": "3", "RequestFor": TagOperatorTasks, "TaskId": "t1",
	}))
	require.NoError(t, err)
	assert.Equal(t, "t1", key)
}

func TestSingleReplyDomains(t *testing.T) {
	tests := []struct {
		name, event, tag string
		keyed            bool
	}{
		{SystemsDomain().Name, SystemsDomain().Event, SystemsDomain().Tag, SystemsDomain().Keys != nil},
		{LicensesDomain().Name, LicensesDomain().Event, LicensesDomain().Tag, LicensesDomain().Keys != nil},
		{UserRolesDomain().Name, UserRolesDomain().Event, UserRolesDomain().Tag, UserRolesDomain().Keys != nil},
		{SessionsDomain().Name, SessionsDomain().Event, SessionsDomain().Tag, SessionsDomain().Keys != nil},
		{CommandsDomain().Name, CommandsDomain().Event, CommandsDomain().Tag, CommandsDomain().Keys != nil},
	}
	want := []struct{ name, event, tag string }{
		{"systems", EventSystems, TagSystems},
		{"licenses", EventLicenses, TagLicenses},
		{"user-roles", EventUserRoles, TagUserRoles},
		{"sessions", EventSessions, TagSessions},
		{"commands", EventCommands, TagCommands},
	}
	for i, tt := range tests {
		t.Run(want[i].name, func(t *testing.T) {
			assert.Equal(t, want[i].name, tt.name)
			assert.Equal(t, want[i].event, tt.event)
			assert.Equal(t, want[i].tag, tt.tag)
			assert.False(t, tt.keyed, "single-reply domain must not expect keys")
		})
	}

	d := UserRolesDomain()
	assert.Equal(t, EventUserRoles, d.Event)
	assert.Equal(t, TagUserRoles, d.Tag)
	key, reply, err := d.Decode(frame(t, EventUserRoles, map[string]any{
		"RequestId": "9", "RequestFor": TagUserRoles,
	}))
	require.NoError(t, err)
	assert.Empty(t, key)
	assert.Equal(t, "9", reply.RequestID)
}

func TestEventsUnion(t *testing.T) {
	u := EventsUnion()
	assert.Equal(t, []string{TagEvents, NotifyEvents}, u.Tags())

	m, err := u.Decode(frame(t, EventEvents, map[string]any{
		"RequestId": "1", "RequestFor": TagEvents, "SystemId": "A",
	}))
	require.NoError(t, err)
	conf, ok := m.(SystemConfirmation)
	require.True(t, ok)
	assert.Equal(t, "A", conf.SystemID)

	m, err = u.Decode(frame(t, EventEvents, map[string]any{
		"RequestFor": NotifyEvents, "EntityId": "ev-7", "ChangeType": "created",
	}))
	require.NoError(t, err)
	change, ok := m.(Change)
	require.True(t, ok)
	assert.Equal(t, "ev-7", change.EntityID)
	assert.Equal(t, "created", change.ChangeType)

	_, err = u.Decode(frame(t, EventEvents, map[string]any{"RequestFor": "other"}))
	assert.ErrorIs(t, err, hub.ErrUnknownVariant)
}

func TestFromKeys(t *testing.T) {
	_, err := noKeys[SystemsArgs]([]string{"x"})
	assert.ErrorIs(t, err, ErrUnexpectedID)
	_, err = noKeys[SystemsArgs](nil)
	assert.NoError(t, err)

	_, err = commandsFromKeys(nil)
	assert.ErrorIs(t, err, ErrNoSystemID)
	c, err := commandsFromKeys([]string{"S"})
	require.NoError(t, err)
	assert.Equal(t, "S", c.SystemID)

	s, err := sessionsFromKeys([]string{"u"})
	require.NoError(t, err)
	assert.Equal(t, "u", s.UserID)
	_, err = sessionsFromKeys([]string{"a", "b"})
	assert.ErrorIs(t, err, ErrUnexpectedID)

	e, err := eventsFromKeys([]string{"A"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, e.SystemIDs)
}
