package sqlinline

// QDebitCredits charges a user atomically. The balance guard in the where
// clause makes an insufficient balance return zero rows instead of going
// negative.
const QDebitCredits = `--sql ea70e8c8-8664-4b41-912b-9dfc7384f0f8
with charged as (
    update users
    set credit_balance = credit_balance - $2
    where id = $1 and credit_balance >= $2
    returning id, credit_balance
),
entry as (
    insert into credit_ledger (id, user_id, delta, reason, job_id, created_at)
    select gen_random_uuid(), id, -$2::int, $3, $4, now() from charged
)
select credit_balance from charged;
`

const QRefundCredits = `--sql 32b5abe4-d5d2-4cdc-a9a2-f0913397c7a1
with refunded as (
    update users
    set credit_balance = credit_balance + $2
    where id = $1
    returning id, credit_balance
),
entry as (
    insert into credit_ledger (id, user_id, delta, reason, job_id, created_at)
    select gen_random_uuid(), id, $2::int, $3, $4, now() from refunded
)
select credit_balance from refunded;
`

const QCreditBalance = `--sql 0e3fe405-9946-48ad-96af-2a13399d0bef
select credit_balance from users where id = $1;
`

const QGrantCredits = `--sql df906874-22b4-478e-85bb-d9a77278229e
with granted as (
    update users
    set credit_balance = credit_balance + $2
    where id = $1
    returning id, credit_balance
),
entry as (
    insert into credit_ledger (id, user_id, delta, reason, job_id, created_at)
    select gen_random_uuid(), id, $2::int, $3, null, now() from granted
)
select credit_balance from granted;
`
