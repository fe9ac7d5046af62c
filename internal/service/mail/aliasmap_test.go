package mail

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splax/peephost/internal/domain"
)

const sampleMap = `# managed
info@other.org    info_other
sales@other.org	sales_other
`

func TestAddThenRemoveBySuffixRestoresOriginal(t *testing.T) {
	original := ParseAliasMap(sampleMap)
	added, err := original.Add(domain.MailUserMapping{Email: "contact@example.com", SystemUser: "contact_site-a"})
	require.NoError(t, err)
	assert.Contains(t, added.String(), "contact@example.com    contact_site-a\n")

	restored, removed := added.RemoveBySuffix(domain.ProjectSuffix("site-a"))
	assert.Equal(t, original.Mappings(), restored.Mappings())
	assert.Equal(t, sampleMap, restored.String())
	assert.Equal(t, []domain.MailUserMapping{{Email: "contact@example.com", SystemUser: "contact_site-a"}}, removed)
}

func TestAddRejectsDuplicates(t *testing.T) {
	m := ParseAliasMap(sampleMap)
	_, err := m.Add(domain.MailUserMapping{Email: "INFO@other.org", SystemUser: "x_other"})
	require.ErrorIs(t, err, ErrMailUserExists)
	_, err = m.Add(domain.MailUserMapping{Email: "new@other.org", SystemUser: "info_other"})
	require.ErrorIs(t, err, ErrMailUserExists)
}

func TestRemoveBySuffixDoesNotTouchSimilarProjects(t *testing.T) {
	m := ParseAliasMap("a@x.com a_site-a\nb@y.com b_a\nc@z.com c_site\n")
	kept, removed := m.RemoveBySuffix(domain.ProjectSuffix("a"))
	require.Len(t, removed, 1)
	assert.Equal(t, "b_a", removed[0].SystemUser)
	assert.Len(t, kept.Mappings(), 2)
}

func TestParseEmptyAndLookup(t *testing.T) {
	m := ParseAliasMap("")
	assert.Empty(t, m.Mappings())
	assert.Equal(t, "", m.String())

	m = ParseAliasMap(sampleMap)
	got, ok := m.Lookup("sales@other.org")
	require.True(t, ok)
	assert.Equal(t, "sales_other", got.SystemUser)

	after, removed := m.RemoveEmail("sales@other.org")
	assert.Len(t, removed, 1)
	_, ok = after.Lookup("sales@other.org")
	assert.False(t, ok)
}
