package redis

const (
	// resetUsageScript atomically empties time-by-site and stamps last-reset
	resetUsageScript = `
local usage_key = KEYS[1]       -- kfocus:time-by-site
local last_reset_key = KEYS[2]  -- kfocus:last-reset

local date = ARGV[1]

redis.call('DEL', usage_key)
redis.call('SET', last_reset_key, date)

return 'OK'
`

	// incrementUsageScript adds seconds to one domain and returns the total.
	// Non-positive increments are rejected so the record never decreases.
	incrementUsageScript = `
local usage_key = KEYS[1]       -- kfocus:time-by-site

local domain = ARGV[1]
local seconds = tonumber(ARGV[2])

if seconds == nil or seconds <= 0 then
  return redis.error_reply('increment must be positive')
end

return redis.call('HINCRBY', usage_key, domain, seconds)
`
)
