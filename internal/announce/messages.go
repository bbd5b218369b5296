package announce

// DefaultMessages are the security notices posted when none are configured.
// They are Telegram HTML.
var DefaultMessages = []string{
	noticeNeverDM,
	noticeImpersonation,
}

const noticeNeverDM = `<b>Important Security Notice </b>

Arc complex admins will <b>NEVER DM</b> you first.  Ignore and block any unsolicited messages.

- No new launches or airdrops are happening.
- Always verify updates via pinned announcements.
- The user <b><i>Arc complex</i></b> will not post in this group.  Any usernames similar who post in group or DM you - please <b>REPORT</b> and block!
- Be mindful of Ex contributors who may send DMs.
- To obtain a current list of arc admins, please use this command: /adminlist`

const noticeImpersonation = `We're seeing increased attempts by scammers impersonating Arc leadership.

<b>IMPORTANT FACTS:</b>

Arc and its team are <b>NOT</b> involved in any "rugging," "scamming," or "shorting" activities. Scammers are creating fake accounts that look similar to our CEO and admins. Any screenshots with talks about manipulating price or special dapps should be reported and are not legitimate. These impersonators may contact you via DM or even post in community spaces.

<b>PROTECT YOURSELF:</b>

Arc admins will <b>NEVER</b> initiate DMs with community members. Be mindful of Ex contributors who may send DMs. All official announcements come <b>ONLY</b> through pinned messages in official channels.

Verify any concerning claims through official channels before taking action.

Immediately report and block any suspicious accounts.

<b>VERIFICATION:</b>

To see the list of legitimate Arc administrators, use: /adminlist

<b>Stay vigilant. Report suspicious activity. Trust only official channels.</b>`
