package redis

import "github.com/redis/go-redis/v9"

// Index layout: a sorted set of member keys scored by expiry (unix ms) and a
// hash of member key to creation time (unix ms). Time always comes from the
// caller as ARGV so the store clock is the single source of truth.
//
// Members whose score is strictly below now are expired, which matches how
// Redis itself expires a key with PX.

const purgeLua = `
local function purge(index, created, now)
  local stale = redis.call('ZRANGEBYSCORE', index, '-inf', '(' .. now)
  for _, member in ipairs(stale) do
    redis.call('HDEL', created, member)
  end
  if #stale > 0 then
    redis.call('ZREMRANGEBYSCORE', index, '-inf', '(' .. now)
  end
end
`

// KEYS: [1]=counter  ARGV: [1]=ttl_ms
var incrScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// KEYS: [1]=key [2]=index [3]=created  ARGV: [1]=now_ms [2]=ttl_ms [3]=limit [4]=value
// Returns {status, value}: 0 created, 1 existing, 2 limit reached.
var insertScript = redis.NewScript(purgeLua + `
local now = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
purge(KEYS[2], KEYS[3], ARGV[1])

local current = redis.call('GET', KEYS[1])
if current then
  return {1, current}
end
if limit > 0 and redis.call('ZCARD', KEYS[2]) >= limit then
  return {2, ''}
end

redis.call('SET', KEYS[1], ARGV[4], 'PX', ttl)
redis.call('ZADD', KEYS[2], now + ttl, KEYS[1])
redis.call('HSET', KEYS[3], KEYS[1], now)
return {0, ARGV[4]}
`)

// KEYS: [1]=key [2]=index [3]=created  ARGV: [1]=now_ms [2]=ttl_ms [3]=limit [4]=value
// Returns the evicted key or an empty string.
var putScript = redis.NewScript(purgeLua + `
local now = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
purge(KEYS[2], KEYS[3], ARGV[1])

local evicted = ''
if limit > 0 and not redis.call('ZSCORE', KEYS[2], KEYS[1]) and redis.call('ZCARD', KEYS[2]) >= limit then
  local head = redis.call('ZRANGE', KEYS[2], 0, 0, 'WITHSCORES')
  local ties = redis.call('ZRANGEBYSCORE', KEYS[2], head[2], head[2])
  local victim = ties[1]
  local oldest = tonumber(redis.call('HGET', KEYS[3], victim)) or 0
  for i = 2, #ties do
    local created = tonumber(redis.call('HGET', KEYS[3], ties[i])) or 0
    if created < oldest then
      victim = ties[i]
      oldest = created
    end
  end
  redis.call('DEL', victim)
  redis.call('ZREM', KEYS[2], victim)
  redis.call('HDEL', KEYS[3], victim)
  evicted = victim
end

redis.call('SET', KEYS[1], ARGV[4], 'PX', ttl)
redis.call('ZADD', KEYS[2], now + ttl, KEYS[1])
redis.call('HSET', KEYS[3], KEYS[1], now)
return evicted
`)

// patchScript applies a kvstore.Patch, encoded as JSON in ARGV[3], to the
// JSON object at KEYS[1]. Steps run in the order expect, unset, set, merge,
// append.
// KEYS: [1]=key, optionally [2]=index  ARGV: [1]=now_ms [2]=ttl_ms [3]=patch
// Returns {status, value}: 1 patched, 0 missing, -1 expect failed, -2 not an object.
var patchScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if not current then
  return {0, ''}
end
local ok, doc = pcall(cjson.decode, current)
if not ok or type(doc) ~= 'table' then
  return {-2, ''}
end

local p = cjson.decode(ARGV[3])
if type(p.expect) == 'table' then
  for field, want in pairs(p.expect) do
    if doc[field] ~= want then
      return {-1, current}
    end
  end
end
if type(p.unset) == 'table' then
  for _, field in ipairs(p.unset) do
    doc[field] = nil
  end
end
if type(p.set) == 'table' then
  for field, value in pairs(p.set) do
    doc[field] = value
  end
end
if type(p.merge) == 'table' then
  for field, values in pairs(p.merge) do
    local obj = doc[field]
    if type(obj) ~= 'table' then
      obj = {}
    end
    for k, v in pairs(values) do
      obj[k] = v
    end
    doc[field] = obj
  end
end
if type(p.append) == 'table' then
  local list = doc[p.append.field]
  if type(list) ~= 'table' then
    list = {}
  end
  table.insert(list, p.append.value)
  local limit = tonumber(p.append.limit) or 0
  while limit > 0 and #list > limit do
    table.remove(list, 1)
  end
  doc[p.append.field] = list
end

local encoded = cjson.encode(doc)
local ttl = tonumber(ARGV[2])
redis.call('SET', KEYS[1], encoded, 'PX', ttl)
if #KEYS > 1 then
  redis.call('ZADD', KEYS[2], tonumber(ARGV[1]) + ttl, KEYS[1])
end
return {1, encoded}
`)

// KEYS: [1]=index [2]=created  ARGV: [1]=now_ms
var lenScript = redis.NewScript(purgeLua + `
purge(KEYS[1], KEYS[2], ARGV[1])
return redis.call('ZCARD', KEYS[1])
`)
