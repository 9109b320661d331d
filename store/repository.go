// Package store implements the object repository over Redis: typed hash
// records with fixed schemas and reference sets of UUID members, both keyed
// by entity kind and UUID.
package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sharedcode/grader"
)

// uuidGlob matches exactly one canonical UUID in a Redis KEYS pattern.
// Reference set keys carry a ":<field>" suffix and fall outside the glob,
// so kind scans only ever see hash records.
const uuidGlob = "????????-????-????-????-????????????"

// Fields stamped on every hash record by the repository itself.
const (
	FieldCreatedTime  = "created_time"
	FieldModifiedTime = "modified_time"
	FieldOwner        = "owner"
)

// BaseSchema is the field set common to every entity kind.
var BaseSchema = []string{FieldCreatedTime, FieldModifiedTime, FieldOwner}

// Schema is an entity kind's exact hash field set.
type Schema []string

// Extend returns a new schema of the base fields plus the given extras.
func (s Schema) Extend(extras ...string) Schema {
	r := make(Schema, 0, len(s)+len(extras))
	r = append(r, s...)
	r = append(r, extras...)
	return r
}

// Contains reports whether field k belongs to the schema.
func (s Schema) Contains(k string) bool {
	for _, f := range s {
		if f == k {
			return true
		}
	}
	return false
}

// matches reports whether the data keys equal the schema exactly.
func (s Schema) matches(data map[string]string) bool {
	if len(data) != len(s) {
		return false
	}
	for k := range data {
		if !s.Contains(k) {
			return false
		}
	}
	return true
}

// subsetOf reports whether all data keys belong to the schema.
func (s Schema) subsetOf(data map[string]string) bool {
	for k := range data {
		if !s.Contains(k) {
			return false
		}
	}
	return true
}

// Client wraps the singleton Redis connection with the repository primitives.
type Client struct {
	conn *Connection
}

// Checks if Redis connection is open and returns the repository client if it is.
func NewClient() *Client {
	return &Client{
		conn: connection,
	}
}

func (c *Client) checkConn() error {
	if c.conn == nil || c.conn.Client == nil {
		return fmt.Errorf("redis connection is not open; call OpenConnection first")
	}
	return nil
}

// keyNotFound will detect whether error signifies key not found by Redis.
func keyNotFound(err error) bool {
	return err == redis.Nil
}

// Ping tests connectivity to Redis (PONG should be returned).
func (c *Client) Ping(ctx context.Context) error {
	if err := c.checkConn(); err != nil {
		return err
	}
	return c.conn.Client.Ping(ctx).Err()
}

// Clear flushes the DB. Test support only; wipes every record.
func (c *Client) Clear(ctx context.Context) error {
	if err := c.checkConn(); err != nil {
		return err
	}
	return c.conn.Client.FlushDB(ctx).Err()
}

// timestamp returns the Unix-seconds string stamped on created/modified times.
func timestamp() string {
	return strconv.FormatInt(time.Now().Unix(), 10)
}

// hashKey formats the Redis key of a hash record.
func hashKey(kind string, id grader.UUID) string {
	return fmt.Sprintf("%s:%s", strings.ToLower(kind), id.String())
}

// refSetKey formats the Redis key of a reference set field.
func refSetKey(kind string, id grader.UUID, field string) string {
	return fmt.Sprintf("%s:%s:%s", strings.ToLower(kind), id.String(), field)
}

// Hash is a typed per-entity record bound to a kind, UUID and schema.
type Hash struct {
	c      *Client
	kind   string
	id     grader.UUID
	schema Schema
}

// Hash binds a hash record handle. No I/O happens until an operation is called.
func (c *Client) Hash(kind string, id grader.UUID, schema Schema) Hash {
	return Hash{c: c, kind: kind, id: id, schema: schema}
}

// Key returns the full Redis key of the record.
func (h Hash) Key() string {
	return hashKey(h.kind, h.id)
}

// UUID returns the record's identity.
func (h Hash) UUID() grader.UUID {
	return h.id
}

// Create inserts the record. The data keys must equal the schema exactly,
// minus the time fields which Create stamps itself.
func (h Hash) Create(ctx context.Context, data map[string]string) error {
	if err := h.c.checkConn(); err != nil {
		return err
	}
	d := make(map[string]string, len(data)+2)
	for k, v := range data {
		d[k] = v
	}
	now := timestamp()
	d[FieldCreatedTime] = now
	d[FieldModifiedTime] = now
	if !h.schema.matches(d) {
		return grader.Error{Code: grader.SchemaViolation, UserData: h.Key(),
			Err: fmt.Errorf("keys do not match schema %v", []string(h.schema))}
	}
	return h.c.conn.Client.HSet(ctx, h.Key(), d).Err()
}

// Exists reports whether the record is present.
func (h Hash) Exists(ctx context.Context) (bool, error) {
	if err := h.c.checkConn(); err != nil {
		return false, err
	}
	n, err := h.c.conn.Client.Exists(ctx, h.Key()).Result()
	return n > 0, err
}

// Get fetches the full record. Missing record returns an ObjectDNE coded error.
func (h Hash) Get(ctx context.Context) (map[string]string, error) {
	if err := h.c.checkConn(); err != nil {
		return nil, err
	}
	d, err := h.c.conn.Client.HGetAll(ctx, h.Key()).Result()
	if err != nil {
		return nil, err
	}
	// HGetAll returns an empty map for a missing key.
	if len(d) == 0 {
		return nil, grader.Error{Code: grader.ObjectDNE, UserData: h.Key(),
			Err: fmt.Errorf("%s does not exist", h.Key())}
	}
	return d, nil
}

// GetField fetches one field. Fields outside the schema are refused.
func (h Hash) GetField(ctx context.Context, k string) (string, error) {
	if err := h.c.checkConn(); err != nil {
		return "", err
	}
	if !h.schema.Contains(k) {
		return "", grader.Error{Code: grader.SchemaViolation, UserData: h.Key(),
			Err: fmt.Errorf("key %s not valid in %s", k, h.kind)}
	}
	s, err := h.c.conn.Client.HGet(ctx, h.Key(), k).Result()
	if keyNotFound(err) {
		// Unset schema field on an existing record reads as empty.
		ok, err2 := h.Exists(ctx)
		if err2 != nil {
			return "", err2
		}
		if !ok {
			return "", grader.Error{Code: grader.ObjectDNE, UserData: h.Key(),
				Err: fmt.Errorf("%s does not exist", h.Key())}
		}
		return "", nil
	}
	return s, err
}

// SetField writes one field & stamps modified_time. Fields outside the schema are refused.
func (h Hash) SetField(ctx context.Context, k string, v string) error {
	if err := h.c.checkConn(); err != nil {
		return err
	}
	if !h.schema.Contains(k) {
		return grader.Error{Code: grader.SchemaViolation, UserData: h.Key(),
			Err: fmt.Errorf("key %s not valid in %s", k, h.kind)}
	}
	return h.c.conn.Client.HSet(ctx, h.Key(), k, v, FieldModifiedTime, timestamp()).Err()
}

// Update writes a partial record. The data keys must be a subset of the
// schema; modified_time is stamped.
func (h Hash) Update(ctx context.Context, data map[string]string) error {
	if err := h.c.checkConn(); err != nil {
		return err
	}
	if !h.schema.subsetOf(data) {
		return grader.Error{Code: grader.SchemaViolation, UserData: h.Key(),
			Err: fmt.Errorf("keys do not match schema %v", []string(h.schema))}
	}
	d := make(map[string]string, len(data)+1)
	for k, v := range data {
		d[k] = v
	}
	d[FieldModifiedTime] = timestamp()
	return h.c.conn.Client.HSet(ctx, h.Key(), d).Err()
}

// Delete removes the record. Deleting a missing record is an error.
func (h Hash) Delete(ctx context.Context) error {
	if err := h.c.checkConn(); err != nil {
		return err
	}
	n, err := h.c.conn.Client.Del(ctx, h.Key()).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return grader.Error{Code: grader.ObjectDNE, UserData: h.Key(),
			Err: fmt.Errorf("%s does not exist", h.Key())}
	}
	return nil
}

// RefSet is an unordered set of UUID references bound to a record's field.
type RefSet struct {
	c     *Client
	kind  string
	id    grader.UUID
	field string
}

// RefSet binds a reference set handle.
func (c *Client) RefSet(kind string, id grader.UUID, field string) RefSet {
	return RefSet{c: c, kind: kind, id: id, field: field}
}

// Key returns the full Redis key of the set.
func (s RefSet) Key() string {
	return refSetKey(s.kind, s.id, s.field)
}

// sanitize parses every member into canonical UUID form before storage.
func sanitize(ids []string) ([]interface{}, error) {
	out := make([]interface{}, len(ids))
	for i, raw := range ids {
		u, err := grader.ParseUUID(raw)
		if err != nil {
			return nil, err
		}
		out[i] = u.String()
	}
	return out, nil
}

// Add inserts members into the set.
func (s RefSet) Add(ctx context.Context, ids []string) error {
	if err := s.c.checkConn(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	members, err := sanitize(ids)
	if err != nil {
		return err
	}
	return s.c.conn.Client.SAdd(ctx, s.Key(), members...).Err()
}

// Remove drops members from the set.
func (s RefSet) Remove(ctx context.Context, ids []string) error {
	if err := s.c.checkConn(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	members, err := sanitize(ids)
	if err != nil {
		return err
	}
	return s.c.conn.Client.SRem(ctx, s.Key(), members...).Err()
}

// List returns all member UUID strings. A missing set lists empty.
func (s RefSet) List(ctx context.Context) ([]string, error) {
	if err := s.c.checkConn(); err != nil {
		return nil, err
	}
	return s.c.conn.Client.SMembers(ctx, s.Key()).Result()
}

// Contains reports set membership of one UUID.
func (s RefSet) Contains(ctx context.Context, id string) (bool, error) {
	if err := s.c.checkConn(); err != nil {
		return false, err
	}
	u, err := grader.ParseUUID(id)
	if err != nil {
		return false, err
	}
	return s.c.conn.Client.SIsMember(ctx, s.Key(), u.String()).Result()
}

// Delete removes the whole set. Deleting a missing set is a no-op.
func (s RefSet) Delete(ctx context.Context) error {
	if err := s.c.checkConn(); err != nil {
		return err
	}
	return s.c.conn.Client.Del(ctx, s.Key()).Err()
}

// ListKind scans for all record UUIDs of a kind.
func (c *Client) ListKind(ctx context.Context, kind string) ([]string, error) {
	if err := c.checkConn(); err != nil {
		return nil, err
	}
	keys, err := c.conn.Client.Keys(ctx, fmt.Sprintf("%s:%s", strings.ToLower(kind), uuidGlob)).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		i := strings.LastIndex(k, ":")
		ids = append(ids, k[i+1:])
	}
	return ids, nil
}
