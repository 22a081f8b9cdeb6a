package wizard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/finview/internal/projectsvc"
)

var xlsx = projectsvc.MemoryFile("jan.xlsx", []byte("data"))

func TestTransition(t *testing.T) {
	collecting := CollectingFile{Session: 1, Name: "Caixa 2026", File: xlsx}
	loadingUpload := CollectingFile{Session: 1, Name: "Caixa 2026", File: xlsx, Loading: true}
	mapping := ConfiguringMapping{Session: 1, ProjectName: "Caixa 2026", ProjectID: "42", Draft: DefaultDraft()}
	loadingMapping := mapping
	loadingMapping.Loading = true
	loadingMapping.Draft.Column = "B"

	tests := []struct {
		name       string
		state      State
		event      Event
		want       State
		wantEffect Effect
	}{
		{
			name:  "open from idle",
			state: Idle{},
			event: Opened{Session: 7},
			want:  CollectingFile{Session: 7},
		},
		{
			name:  "completion while idle is ignored",
			state: Idle{},
			event: UploadSucceeded{Session: 1, ID: "9"},
			want:  Idle{},
		},
		{
			name:  "name edit clears error",
			state: CollectingFile{Session: 1, Err: "boom"},
			event: NameEdited{Name: "x"},
			want:  CollectingFile{Session: 1, Name: "x"},
		},
		{
			name:  "unsupported file rejected inline",
			state: CollectingFile{Session: 1},
			event: FileSelected{File: projectsvc.MemoryFile("notes.txt", nil)},
			want: CollectingFile{Session: 1,
				Err: projectsvc.CheckExtension("notes.txt", projectsvc.CreateExtensions).Error()},
		},
		{
			name:  "file cleared",
			state: collecting,
			event: FileCleared{},
			want:  CollectingFile{Session: 1, Name: "Caixa 2026"},
		},
		{
			name:  "submit without file issues no request",
			state: CollectingFile{Session: 1, Name: "Caixa 2026"},
			event: UploadSubmitted{},
			want:  CollectingFile{Session: 1, Name: "Caixa 2026", Err: MsgNameAndFileRequired},
		},
		{
			name:  "submit with blank name issues no request",
			state: CollectingFile{Session: 1, Name: "  ", File: xlsx},
			event: UploadSubmitted{},
			want:  CollectingFile{Session: 1, Name: "  ", File: xlsx, Err: MsgNameAndFileRequired},
		},
		{
			name:       "submit starts upload",
			state:      collecting,
			event:      UploadSubmitted{},
			want:       loadingUpload,
			wantEffect: StartUpload{Session: 1, Name: "Caixa 2026", File: xlsx},
		},
		{
			name:  "submit while loading is a no-op",
			state: loadingUpload,
			event: UploadSubmitted{},
			want:  loadingUpload,
		},
		{
			name:  "edit while loading is ignored",
			state: loadingUpload,
			event: NameEdited{Name: "other"},
			want:  loadingUpload,
		},
		{
			name:  "upload success advances with retained id",
			state: loadingUpload,
			event: UploadSucceeded{Session: 1, ID: "42"},
			want:  mapping,
		},
		{
			name:  "upload success from another session is ignored",
			state: loadingUpload,
			event: UploadSucceeded{Session: 2, ID: "42"},
			want:  loadingUpload,
		},
		{
			name:  "upload failure keeps name and file",
			state: loadingUpload,
			event: UploadFailed{Session: 1, Message: "Project name required"},
			want:  CollectingFile{Session: 1, Name: "Caixa 2026", File: xlsx, Err: "Project name required"},
		},
		{
			name:  "non-numeric start row never reaches the network",
			state: ConfiguringMapping{Session: 1, ProjectID: "42", Draft: MappingDraft{Sheet: "Planilha1", Column: "B", StartRow: "abc"}},
			event: MappingSubmitted{},
			want: ConfiguringMapping{Session: 1, ProjectID: "42",
				Draft: MappingDraft{Sheet: "Planilha1", Column: "B", StartRow: "abc"}, Err: MsgStartRowInvalid},
		},
		{
			name:  "missing column rejected",
			state: mapping,
			event: MappingSubmitted{},
			want: ConfiguringMapping{Session: 1, ProjectName: "Caixa 2026", ProjectID: "42",
				Draft: DefaultDraft(), Err: MsgColumnRequired},
		},
		{
			name: "valid mapping starts request for retained id",
			state: ConfiguringMapping{Session: 1, ProjectName: "Caixa 2026", ProjectID: "42",
				Draft: MappingDraft{Sheet: "Planilha1", Column: "B", DateColumn: "A", StartRow: "2"}},
			event: MappingSubmitted{},
			want: ConfiguringMapping{Session: 1, ProjectName: "Caixa 2026", ProjectID: "42", Loading: true,
				Draft: MappingDraft{Sheet: "Planilha1", Column: "B", DateColumn: "A", StartRow: "2"}},
			wantEffect: StartMapping{Session: 1, ProjectID: "42",
				Settings: projectsvc.Settings{Sheet: "Planilha1", Column: "B", DateColumn: "A", Line: 2}},
		},
		{
			name:       "mapping success closes",
			state:      loadingMapping,
			event:      MappingSucceeded{Session: 1},
			want:       Idle{},
			wantEffect: Completed{ProjectID: "42"},
		},
		{
			name:  "mapping failure keeps id and draft",
			state: loadingMapping,
			event: MappingFailed{Session: 1, Message: "record not found"},
			want: func() State {
				s := loadingMapping
				s.Loading, s.Err = false, "record not found"
				return s
			}(),
		},
		{
			name:  "stale mapping success is ignored",
			state: loadingMapping,
			event: MappingSucceeded{Session: 3},
			want:  loadingMapping,
		},
		{
			name:  "close from mapping",
			state: loadingMapping,
			event: Closed{},
			want:  Idle{},
		},
		{
			name:  "open while open is ignored",
			state: collecting,
			event: Opened{Session: 9},
			want:  collecting,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, eff := Transition(tt.state, tt.event)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantEffect, eff)
		})
	}
}

func TestTransition_ProjectIDNeverChanges(t *testing.T) {
	var s State = ConfiguringMapping{Session: 1, ProjectID: "42", Draft: DefaultDraft(), Loading: true}
	events := []Event{
		UploadSucceeded{Session: 1, ID: "99"},
		MappingFailed{Session: 1, Message: "x"},
		MappingEdited{Draft: MappingDraft{Sheet: "S", Column: "C", StartRow: "3"}},
		UploadSucceeded{Session: 1, ID: "100"},
		MappingSubmitted{},
	}
	for _, e := range events {
		s, _ = Transition(s, e)
		cm, ok := s.(ConfiguringMapping)
		require.True(t, ok)
		assert.Equal(t, projectsvc.ID("42"), cm.ProjectID)
	}
}

func TestMappingDraft_Settings(t *testing.T) {
	tests := []struct {
		name    string
		draft   MappingDraft
		want    projectsvc.Settings
		wantErr string
	}{
		{"defaults need a column", DefaultDraft(), projectsvc.Settings{}, MsgColumnRequired},
		{"trimmed", MappingDraft{Sheet: " Planilha1 ", Column: " B ", StartRow: " 3 "},
			projectsvc.Settings{Sheet: "Planilha1", Column: "B", Line: 3}, ""},
		{"zero row", MappingDraft{Sheet: "S", Column: "B", StartRow: "0"}, projectsvc.Settings{}, MsgStartRowInvalid},
		{"negative row", MappingDraft{Sheet: "S", Column: "B", StartRow: "-1"}, projectsvc.Settings{}, MsgStartRowInvalid},
		{"fractional row", MappingDraft{Sheet: "S", Column: "B", StartRow: "2.5"}, projectsvc.Settings{}, MsgStartRowInvalid},
		{"empty sheet", MappingDraft{Column: "B", StartRow: "2"}, projectsvc.Settings{}, MsgSheetRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.draft.Settings()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.ErrorIs(t, err, projectsvc.ErrValidation)
				assert.Equal(t, tt.wantErr, projectsvc.UserMessage(err, ""))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
