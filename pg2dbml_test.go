package pg2dbml

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pg2dbml/pg2dbml/preprocess"
	"github.com/pg2dbml/pg2dbml/schema"
)

// sampleDump is a trimmed pg_dump output exercising the statement classes the
// pipeline has to deal with: session noise, psql meta-commands, data sections,
// ownership statements, enums, sequences, arrays, and constraints added after
// the table definitions.
const sampleDump = `--
-- PostgreSQL database dump
--

SET statement_timeout = 0;
SET client_encoding = 'UTF8';
SELECT pg_catalog.set_config('search_path', '', false);

\connect app

CREATE TYPE public.mood AS ENUM (
    'happy',
    'sad'
);

CREATE SEQUENCE public.users_id_seq
    START WITH 1
    INCREMENT BY 1;

CREATE TABLE public.users (
    id integer DEFAULT nextval('public.users_id_seq'::regclass) NOT NULL,
    email character varying(255) NOT NULL,
    tags text[] DEFAULT '{}'::text[],
    current_mood public.mood,
    created_at timestamp with time zone DEFAULT now()
);

ALTER TABLE public.users OWNER TO postgres;

ALTER SEQUENCE public.users_id_seq OWNED BY public.users.id;

CREATE TABLE public.posts (
    id integer NOT NULL,
    author_id integer NOT NULL,
    price numeric(10,2),
    CONSTRAINT price_positive CHECK (price > 0)
);

ALTER TABLE ONLY public.posts
    ALTER COLUMN id SET DEFAULT nextval('public.posts_id_seq'::regclass);

COPY public.users (id) FROM stdin;
1
\.

ALTER TABLE ONLY public.users
    ADD CONSTRAINT users_pkey PRIMARY KEY (id);

ALTER TABLE ONLY public.users
    ADD CONSTRAINT users_email_key UNIQUE (email);

ALTER TABLE ONLY public.posts
    ADD CONSTRAINT posts_pkey PRIMARY KEY (id);

ALTER TABLE ONLY public.posts
    ADD CONSTRAINT posts_author_id_fkey FOREIGN KEY (author_id) REFERENCES public.users(id) ON DELETE CASCADE;

CREATE INDEX posts_author_id_idx ON public.posts USING btree (author_id);

GRANT SELECT ON TABLE public.users TO readonly;
`

func featuresByType(features []schema.Feature) map[string]int {
	m := map[string]int{}
	for _, f := range features {
		m[f.Type]++
	}
	return m
}

func removalsByCategory(removals []preprocess.Removal) map[string]int {
	m := map[string]int{}
	for _, r := range removals {
		m[r.Category]++
	}
	return m
}

func TestConvertSampleDump(t *testing.T) {
	res := Convert(sampleDump, Options{})
	require.NotNil(t, res.Report)

	assert.Contains(t, res.DBML, "Project postgresql_schema {")
	assert.Contains(t, res.DBML, "Enum mood {\n  happy\n  sad\n}\n")
	assert.Contains(t, res.DBML,
		"Table users [headercolor: #1E69FD] {\n"+
			"  id integer [pk, increment]\n"+
			"  email varchar(255) [unique, not null]\n"+
			"  tags \"text []\" [default: '{}']\n"+
			"  current_mood mood\n"+
			"  created_at timestamptz [default: `now()`]\n"+
			"}\n")
	assert.Contains(t, res.DBML,
		"Table posts [headercolor: #24BAB1] {\n"+
			"  id integer [pk]\n"+
			"  author_id integer [not null]\n"+
			"  price numeric(10,2)\n"+
			"\n"+
			"  indexes {\n"+
			"    author_id [name: 'posts_author_id_idx']\n"+
			"  }\n"+
			"}\n")
	assert.Contains(t, res.DBML, "Ref: posts.author_id > users.id [delete: cascade]")
	assert.NotContains(t, res.DBML, "nextval")
	assert.NotContains(t, res.DBML, "public.")

	rep := res.Report
	assert.True(t, rep.Validation.IsValid)
	assert.Empty(t, rep.Validation.Errors)
	assert.Empty(t, rep.SilentFailures)
	assert.Empty(t, rep.ParsingErrors)
	assert.Empty(t, rep.SkippedRelationships)
	assert.Equal(t, rep.DuplicateRelationships, 0)
	assert.Empty(t, rep.Transformations)
	assert.Empty(t, rep.Warnings)
	assert.False(t, rep.GeneratedAt.IsZero())

	assert.Equal(t, removalsByCategory(rep.Removals), map[string]int{
		preprocess.CategorySet:               2,
		preprocess.CategorySelect:            1,
		preprocess.CategoryPsqlCommand:       1,
		preprocess.CategoryCopy:              1,
		preprocess.CategoryPermission:        1,
		preprocess.CategoryOwnership:         1,
		preprocess.CategorySequenceOwnership: 1,
		preprocess.CategoryColumnDefault:     1,
	})

	require.Len(t, rep.DroppedConstraints, 1)
	dropped := rep.DroppedConstraints[0]
	assert.Equal(t, dropped.Table, "posts")
	assert.Equal(t, dropped.Name, "price_positive")
	assert.Equal(t, dropped.ConstraintType, "CHECK")
	assert.Equal(t, dropped.CheckExpression, "price > 0")

	assert.Equal(t, featuresByType(rep.Features), map[string]int{
		"ARRAY_TYPE":       1,
		"CHECK_CONSTRAINT": 1,
		"CASCADE_ACTION":   1,
	})
	require.Len(t, rep.CompatibilityIssues, 2)
	assert.Equal(t, rep.CompatibilityIssues[0].Type, "ARRAY_TYPE")
	assert.Equal(t, rep.CompatibilityIssues[1].Type, "CHECK_CONSTRAINT")

	st := rep.Statistics
	assert.Equal(t, st.Tables, 2)
	assert.Equal(t, st.Columns, 8)
	assert.Equal(t, st.Relationships, 1)
	assert.Equal(t, st.Enums, 1)
	assert.Equal(t, st.Sequences, 1)
	assert.Equal(t, st.Indexes, 1)
	assert.Equal(t, st.ArrayColumns, 1)

	// The array column is the only blocker for strict mode.
	assert.Equal(t, rep.StrictViolations(), []string{"1 critical compatibility features detected"})

	require.Len(t, rep.DecisionRecords, 6)
	for _, rec := range rep.DecisionRecords {
		assert.Equal(t, rec.Context, "default")
	}
}

func TestConvertCheckConstraintComment(t *testing.T) {
	res := Convert(sampleDump, Options{
		Decisions: schema.Decisions{CheckConstraintAction: schema.CheckConstraintComment},
	})

	assert.Contains(t, res.DBML, "  Note: '''\n  CHECK price_positive: price > 0\n  '''\n")
	require.Len(t, res.Report.DroppedConstraints, 1)

	contexts := map[string]string{}
	for _, rec := range res.Report.DecisionRecords {
		contexts[rec.DecisionType] = rec.Context
	}
	assert.Equal(t, contexts[schema.DecisionCheckConstraintAction], "configured")
	assert.Equal(t, contexts[schema.DecisionArrayType], "default")
}

func TestConvertDeduplicatesForeignKeys(t *testing.T) {
	res := Convert(`CREATE TABLE users (id integer PRIMARY KEY);
CREATE TABLE posts (id integer PRIMARY KEY, author_id integer REFERENCES users(id));
ALTER TABLE ONLY posts
    ADD CONSTRAINT posts_author_id_fkey FOREIGN KEY (author_id) REFERENCES users(id);`, Options{})

	assert.Equal(t, strings.Count(res.DBML, "Ref:"), 1)
	assert.Contains(t, res.DBML, "Ref: posts.author_id > users.id")
	assert.Equal(t, res.Report.DuplicateRelationships, 1)
	assert.Empty(t, res.Report.SilentFailures)
}

func TestConvertSkipsRelationshipToMissingTable(t *testing.T) {
	res := Convert(`CREATE TABLE posts (id integer PRIMARY KEY, author_id integer);
ALTER TABLE ONLY posts
    ADD CONSTRAINT posts_author_id_fkey FOREIGN KEY (author_id) REFERENCES users(id);`, Options{})

	assert.NotContains(t, res.DBML, "Ref:")
	require.Len(t, res.Report.SkippedRelationships, 1)
	assert.Equal(t, res.Report.SkippedRelationships[0].Reason, schema.SkipMissingTargetTable)
	assert.Empty(t, res.Report.SilentFailures)
	assert.Contains(t, res.Report.StrictViolations(), "1 relationships skipped")
}

func TestConvertSerialPrimaryKey(t *testing.T) {
	res := Convert("CREATE TABLE t (id serial PRIMARY KEY, tags text[]);", Options{})

	assert.Contains(t, res.DBML,
		"Table t [headercolor: #1E69FD] {\n"+
			"  id integer [pk, increment]\n"+
			"  tags \"text []\"\n"+
			"}\n")
	require.Len(t, res.Report.Transformations, 1)
	assert.Equal(t, res.Report.Transformations[0].Reason, schema.ReasonSerial)
	assert.Equal(t, res.Report.Transformations[0].OriginalType, "serial")
}

func TestConvertDropsInlineCheckConstraint(t *testing.T) {
	res := Convert("CREATE TABLE x (v int CHECK (v > 0));", Options{})

	assert.Contains(t, res.DBML, "Table x [headercolor: #1E69FD] {\n  v integer\n}\n")
	assert.NotContains(t, res.DBML, "v > 0")
	require.Len(t, res.Report.DroppedConstraints, 1)
	assert.Equal(t, res.Report.DroppedConstraints[0].ConstraintType, "CHECK")
	assert.Equal(t, res.Report.DroppedConstraints[0].CheckExpression, "v > 0")
	for _, tbl := range res.Schema.Tables {
		for _, c := range tbl.Constraints {
			assert.NotEqual(t, c.Type, schema.ConstraintCheck)
		}
	}
}

func TestConvertIsolatesMalformedStatements(t *testing.T) {
	res := Convert(`CREATE TABLE good (id integer);
CREATE TABLE broken;
CREATE TABLE also_good (id integer);`, Options{})

	assert.Contains(t, res.DBML, "Table good ")
	assert.Contains(t, res.DBML, "Table also_good ")
	require.Len(t, res.Report.ParsingErrors, 1)
	assert.Contains(t, res.Report.ParsingErrors[0].Message, "no column list")
	assert.Contains(t, res.Report.StrictViolations(), "1 statements failed to parse")
	assert.True(t, res.Report.Validation.IsValid)
}

func TestConvertEmptyDump(t *testing.T) {
	res := Convert("", Options{})

	assert.Contains(t, res.DBML, "Project postgresql_schema {")
	assert.True(t, res.Report.Validation.IsValid)
	assert.Equal(t, res.Report.Statistics.Tables, 0)
	assert.Empty(t, res.Report.StrictViolations())
	assert.Len(t, res.Report.DecisionRecords, 6)
}

func TestInspectDetectsFeatures(t *testing.T) {
	features := Inspect(`CREATE TABLE t (tags text[], location point);`)

	byType := featuresByType(features)
	assert.Equal(t, byType["ARRAY_TYPE"], 1)
	assert.Equal(t, byType["GEOMETRIC_TYPE"], 1)
}
