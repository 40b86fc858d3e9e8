package main

// Packet ids, client→server ("In") and server→client ("Out"), per spec §6's
// catalog. Names follow the original protocol's naming, not a renumbering.
const (
	inChangeAction     uint16 = 0
	inPublicMessage    uint16 = 1
	inLogout           uint16 = 2
	inStatsUpdateReq   uint16 = 3
	inPing             uint16 = 4
	inStartSpectate    uint16 = 16
	inStopSpectate     uint16 = 17
	inSpectateFrames   uint16 = 18
	inCantSpectate     uint16 = 21
	inPrivateMessage   uint16 = 25
	inPartLobby        uint16 = 29
	inJoinLobby        uint16 = 30
	inCreateMatch      uint16 = 31
	inJoinMatch        uint16 = 32
	inPartMatch        uint16 = 33
	inMatchChangeSlot  uint16 = 38
	inMatchReady       uint16 = 39
	inMatchLock        uint16 = 40
	inMatchChangeSettings uint16 = 41
	inMatchStart       uint16 = 44
	inMatchScoreUpdate uint16 = 48
	inMatchComplete    uint16 = 49
	inMatchChangeMods  uint16 = 51
	inMatchLoadComplete uint16 = 52
	inMatchNoBeatmap   uint16 = 54
	inMatchNotReady    uint16 = 55
	inMatchFailed      uint16 = 56
	inMatchHasBeatmap  uint16 = 59
	inMatchSkipRequest uint16 = 60
	inChannelJoin      uint16 = 63
	inMatchTransferHost uint16 = 70
	inFriendAdd        uint16 = 73
	inFriendRemove     uint16 = 74
	inMatchChangeTeam  uint16 = 77
	inChannelPart      uint16 = 78
	inReceiveUpdates   uint16 = 79
	inSetAwayMessage   uint16 = 82
	inUserStatsRequest uint16 = 85
	inMatchInvite      uint16 = 87
	inMatchChangePassword uint16 = 90
	inUserPresenceRequest uint16 = 97
	inToggleBlockNonFriendPM uint16 = 99

	outUserId                 uint16 = 5
	outSendMessage            uint16 = 7
	outPing                   uint16 = 8
	outUserStats              uint16 = 11
	outLogout                 uint16 = 12
	outSpectatorJoined        uint16 = 13
	outSpectatorLeft          uint16 = 14
	outSpectateFrames         uint16 = 15
	outHostSpectatorJoined    uint16 = 19
	outSpectatorCantSpectate  uint16 = 22
	outChannelJoin            uint16 = 65
	outChannelInfo            uint16 = 66
	outProtocolVersion        uint16 = 75
	outMainMenuIcon           uint16 = 76
	outMatchNew               uint16 = 83
	outMatchUpdate            uint16 = 84
	outMatchDisband           uint16 = 88
	outChannelInfoEnd         uint16 = 89
	outMatchStart             uint16 = 92
	outChannelPart            uint16 = 98
	outMatchScoreUpdate       uint16 = 99
	outMatchTransferHost      uint16 = 100
	outMatchAllPlayersLoaded  uint16 = 101
	outMatchPlayerFailed      uint16 = 105
	outMatchComplete          uint16 = 106
	outMatchSkip              uint16 = 111
	outUnauthorized           uint16 = 112
	outUserPresence           uint16 = 115
	outNotification           uint16 = 122
	outMatchPlayerSkipped     uint16 = 127
	outUserPresenceSingle     uint16 = 129
	outUserPresenceBundle     uint16 = 130
	outUserSilenced           uint16 = 131
	outUserPMBlocked          uint16 = 132
	outTargetIsSilenced       uint16 = 133
	outFriendsList            uint16 = 134
	outProtocolNegotiation    uint16 = 136
	outSilenceEnd             uint16 = 138
	outBanchoPrivileges       uint16 = 139
)

// Sentinel UserId payload values.
const (
	userIDInvalidCredentials int32 = -1
	userIDBanned             int32 = -3
)

const banchoProtocolVersion uint32 = 19

// Privilege bits, used both for Player.Privileges and Channel read/write
// capability gates.
const (
	PrivNormal uint32 = 1 << iota
	PrivBAT
	PrivSupporter
	PrivModerator
	PrivAdmin
	PrivDeveloper
)

const PrivStaff = PrivModerator | PrivAdmin | PrivDeveloper

// Mod bits. Only the subset referenced by the match state machine is named;
// unrecognized bits round-trip untouched.
const (
	ModNoFail uint32 = 1 << iota
	ModEasy
	_ // touchscreen, unused here
	ModHidden
	ModHardRock
	ModSuddenDeath
	ModDoubleTime
	ModRelax
	ModHalfTime
	ModNightcore
	ModFlashlight
)

// SpeedChangingMods is the subset of mods that affect playback rate; only
// these survive on the match when freemods is enabled (spec §3).
const SpeedChangingMods = ModDoubleTime | ModHalfTime | ModNightcore

// SlotStatus values.
type SlotStatus uint8

const (
	SlotOpen SlotStatus = iota
	SlotLocked
	SlotNotReady
	SlotReady
	SlotNoMap
	SlotPlaying
	SlotComplete
	SlotQuit
)

// HasPlayer reports whether this status implies an occupied slot, per
// spec §3's disjoint-status note.
func (s SlotStatus) HasPlayer() bool {
	switch s {
	case SlotNotReady, SlotReady, SlotNoMap, SlotPlaying, SlotComplete:
		return true
	default:
		return false
	}
}

// Team values.
type Team uint8

const (
	TeamNeutral Team = iota
	TeamBlue
	TeamRed
)

// TeamType and ScoringType enumerate match-wide modes.
type TeamType uint8

const (
	TeamTypeHeadToHead TeamType = iota
	TeamTypeTagCoop
	TeamTypeTeamVs
	TeamTypeTagTeamVs
)

type ScoringType uint8

const (
	ScoringScore ScoringType = iota
	ScoringAccuracy
	ScoringCombo
	ScoringScoreV2
)

// PresenceFilter controls which other players a Player receives presence
// updates for.
type PresenceFilter uint8

const (
	PresenceNone PresenceFilter = iota
	PresenceAll
	PresenceFriends
)
