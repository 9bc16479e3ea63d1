package sqlinline

const QUserStats = `--sql 2583b743-d2de-483a-9492-878ee3614892
select
    count(*) filter (where status = 'completed') as completed,
    count(*) filter (where status = 'failed') as failed,
    count(*) filter (where status = 'cancelled') as cancelled,
    count(*) filter (where status in ('pending', 'processing')) as active,
    coalesce(sum(target_duration) filter (where status = 'completed'), 0) as seconds_rendered,
    coalesce(sum(credits_charged) filter (where status = 'completed'), 0) as credits_spent
from generation_jobs
where user_id = $1;
`
