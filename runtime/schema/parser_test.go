package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const blogSchema = `
datasource db {
  provider = "sqlite"
  url      = "file:dev.db"
}

generator client {
  provider = "prisma-client-go"
}

// users of the blog
model User {
  id        String   @id @default(uuid())
  email     String   @unique
  name      String?
  val       Int?
  role      Role     @default(USER)
  posts     Post[]
  createdAt DateTime @default(now())
}

model Post {
  id       Int    @id @default(autoincrement())
  title    String
  authorId String
  author   User   @relation(fields: [authorId], references: [id])

  @@unique([authorId, title])
}

enum Role {
  USER
  ADMIN @map("admin")
}
`

func TestParseBlogSchema(t *testing.T) {
	dm, err := ParseString("schema.prisma", blogSchema)
	require.NoError(t, err)

	assert.Equal(t, []string{"User", "Post"}, dm.ModelNames())
	require.Len(t, dm.Enums, 1)
	assert.Equal(t, []string{"USER", "ADMIN"}, dm.Enums[0].Values)

	user, ok := dm.Model("User")
	require.True(t, ok)
	assert.Equal(t, []string{"id"}, user.ID)
	assert.Equal(t, "uuid", user.Field("id").Default.Function)
	assert.True(t, user.Field("email").Unique)
	assert.True(t, user.Field("name").Optional)
	assert.True(t, user.Field("posts").Relation)
	assert.True(t, user.Field("posts").List)
	assert.True(t, user.Field("role").Enum)
	assert.Equal(t, "USER", user.Field("role").Default.Value)
	assert.Equal(t, [][]string{{"id"}, {"email"}}, user.UniqueCriteria())
	assert.Len(t, user.ScalarFields(), 6)

	post, ok := dm.Model("Post")
	require.True(t, ok)
	assert.Equal(t, "autoincrement", post.Field("id").Default.Function)
	assert.Equal(t, [][]string{{"id"}, {"authorId", "title"}}, post.UniqueCriteria())

	ds, ok := dm.Datasource()
	require.True(t, ok)
	assert.Equal(t, "sqlite", ds.Values["provider"])
}

func TestParseRejectsUnknownType(t *testing.T) {
	_, err := ParseString("bad.prisma", `
model User {
  id Strin @id
}
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown type")
}

func TestParseRejectsDuplicateModel(t *testing.T) {
	_, err := ParseString("dup.prisma", `
model User {
  id String @id
}
model User {
  id String @id
}
`)
	require.Error(t, err)
}

func TestFieldsNamedLikeKeywords(t *testing.T) {
	dm, err := ParseString("kw.prisma", `
model Event {
  id    Int    @id
  type  String
  model String
}
`)
	require.NoError(t, err)
	ev, _ := dm.Model("Event")
	assert.NotNil(t, ev.Field("type"))
	assert.NotNil(t, ev.Field("model"))
}
