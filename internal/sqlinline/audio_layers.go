package sqlinline

const QInsertAudioLayer = `--sql 9f2ae9de-0ec1-4c17-abe0-5638d6ffc370
insert into audio_layers (
    id, job_id, layer_index, storage_key, file_name, file_size,
    duration, volume, muted, fade_in, fade_out
) values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
returning id;
`

const QAudioLayersByJob = `--sql 48a98c6e-9b65-49f9-bcf9-0eed68b419c6
select id, job_id, layer_index, storage_key, file_name, file_size,
       duration, volume, muted, fade_in, fade_out
from audio_layers
where job_id = $1
order by layer_index asc;
`

const QUpdateAudioLayer = `--sql 13660047-7167-45c1-bd60-aecb0ac14ef9
update audio_layers
set volume = $3, muted = $4, fade_in = $5, fade_out = $6
where id = $1 and job_id = $2
returning id;
`

const QDeleteAudioLayer = `--sql ffeb3d1a-10d2-4baf-ac44-d56f88c8e519
delete from audio_layers
where id = $1 and job_id = $2
returning storage_key, file_size;
`

// QNextLayerIndex keeps layer ordering dense per job.
const QNextLayerIndex = `--sql 78729496-384f-49bc-8807-05abfd978abc
select coalesce(max(layer_index) + 1, 0) from audio_layers where job_id = $1;
`
