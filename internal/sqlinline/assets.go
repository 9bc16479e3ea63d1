package sqlinline

const QInsertAsset = `--sql 89b2130c-c39f-4b83-b4fc-3aeab0274e9a
insert into media_assets (
    id, user_id, kind, storage_key, file_name, mime_type, file_size,
    duration, width, height, has_audio, created_at
) values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
returning id, created_at;
`

const QAssetByID = `--sql bf10c4a6-4269-4388-a51c-59b35caa0c8d
select id, user_id, kind, storage_key, file_name, mime_type, file_size,
       duration, width, height, has_audio, created_at
from media_assets
where id = $1 and user_id = $2;
`

const QAssetByIDAny = `--sql eaaeca41-6187-445c-aa58-92983e0a8482
select id, user_id, kind, storage_key, file_name, mime_type, file_size,
       duration, width, height, has_audio, created_at
from media_assets
where id = $1;
`

// QCacheAssetDuration stores probe results so repeat renders of the same
// source skip the probe subprocess.
const QCacheAssetDuration = `--sql 32b5e1ff-ff94-4daf-8023-ecaf22e9c40a
update media_assets
set duration = $2, width = $3, height = $4, has_audio = $5
where id = $1;
`

const QDeleteAsset = `--sql 7189de78-20b2-4aee-abf9-a42a98cd158d
delete from media_assets
where id = $1 and user_id = $2
returning storage_key, file_size;
`
