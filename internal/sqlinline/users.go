package sqlinline

const QUserByID = `--sql c55ca61d-900a-4cdb-a4be-26831e14ede7
select id, email, credit_balance, storage_used, storage_quota, created_at
from users
where id = $1;
`

// QReserveStorage admits an upload only while it fits the user's quota.
const QReserveStorage = `--sql 6f164eeb-51db-479f-952a-a1b02742785b
update users
set storage_used = storage_used + $2
where id = $1 and storage_used + $2 <= storage_quota
returning storage_used;
`

const QReleaseStorage = `--sql 8a2f3a05-7ce3-4982-b0e8-43a6f8a7960b
update users
set storage_used = greatest(storage_used - $2, 0)
where id = $1
returning storage_used;
`
