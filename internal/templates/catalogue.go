package templates

const slotMenu = `S = Saturday
U = Sunday`

const timeMenu = `A = 15:30
B = 19:30
C = 20:00
D = 20:30
E = 21:00`

const combinedMenu = `Saturday: SA 15:30 · SB 19:30 · SC 20:00 · SD 20:30 · SE 21:00
Sunday:   UA 15:30 · UB 19:30 · UC 20:00 · UD 20:30 · UE 21:00`

// Catalogue is the built-in message set. Placeholders use text/template syntax.
var Catalogue = map[string]string{
	NameRequest: `Hi 🌸 I'm {{.SenderName}} from InnerJoy! Lovely to connect with you.
Can you share your (first) name? Then I'll send your Zoom link 🌈`,

	NameRequestOrganic: `Hi 🌸 I'm {{.SenderName}} from InnerJoy!
Please share your first name and I'll send your free Zoom preview link 🌈

Our free "Renew Your Inner Joy" previews run this weekend, Saturday and Sunday from 15:30.`,

	DayOptions: `Hey {{.Name}} 🌸

Here is your Zoom link 🌈
{{.ZoomLink}}

New to Zoom? Download it here:
{{.ZoomDownloadLink}}

Which day suits you best? 👇
` + slotMenu + `

Reply S or U 💫`,

	DayReprompt: `Sorry {{.Name}}, I didn't catch that 🌸
Please reply with just the letter of your day:
` + slotMenu,

	TimeOptions: `Lovely, {{.Day}} it is ✨
Which time works for you? 👇
` + timeMenu + `

Reply A, B, C, D or E 💫`,

	TimeReprompt: `Sorry {{.Name}}, that's not one of the times 🌸
Please reply with just the letter:
` + timeMenu,

	CombinedReprompt: `Hey {{.Name}} 🌸
Reply with your day and time letters together, for example SB for Saturday 19:30:
` + combinedMenu + `

Or: I already attended`,

	SlotConfirmed: `Hey {{.Name}} 💖
Great, you're on the list!
🕒 Your chosen time: {{.Slot}} 🌈

Want to share this moment of Joy with friends or family?
Here's a little card to invite them 💫`,

	InviteCard: `Hey lovely! 🌸

I'm joining a free 30-minute Zoom preview to "Renew your Inner Joy" at {{.Slot}} 🌈
We dance and do playful creative exercises 🎭

Will you join too? Sign up here 👇
{{.InviteLink}}

Warm greetings,
{{.Name}}`,

	Reminder12H: `Hello {{.Name}} 🌸
Just a gentle reminder: your "Renew your Inner Joy" Zoom preview is coming soon ✨

🕒 {{.Slot}}

Can't wait to see you!
{{.SenderName}} – Inner Joy`,

	Reminder12HThumbs: `Hello {{.Name}} 🌸
Just a gentle reminder: your "Renew your Inner Joy" Zoom preview is coming soon ✨

🕒 {{.Slot}}

Reply 👍 so I know you'll be there!
{{.SenderName}} – Inner Joy`,

	Reminder60M: `Hello {{.Name}} 🌸
We're gathering soon for "Renew your Inner Joy"
🕒 Starts at {{.Slot}}

Here's your join link 👇
{{.ZoomLink}}`,

	Reminder10M: `Hi {{.Name}} 🌼
We start in 10 minutes! Tap to join now:
{{.ZoomLink}}`,

	SalesS1: `Hey {{.Name}} 🌸
How lovely that you joined our Inner Joy preview! 💫

Our 3-month membership is just $80 💖
Explore it and join here 👇
{{.MembershipLink}}`,

	SalesShakeup: `Hey {{.Name}} 💫
Inner Joy is thriving! 🌸 Four new members joined us this week 💕

Come create more Joy in your life 🌈
{{.MembershipLink}}`,

	SalesS2: `Hi {{.Name}} 🌿
Did a smile come up thinking of the playful session? 😊

Not sure yet? Try our Fair Trial, 10 days for $12:
{{.TrialLink}}

Or go for the full experience, 3 months for $80:
{{.MembershipLink}}`,

	SalesS3: `Hi {{.Name}} 🌞 Good morning!
Would you love to feel that joy more often in your week? 🌸

3 months of Inner Joy, only $80:
{{.MembershipLink}}

Or try our Fair Trial, 10 days for $12:
{{.TrialLink}}`,

	FallbackRA: `Hey {{.Name}} 🌸
Here's your free Zoom link 🌈
{{.ZoomLink}}

Which day + time fits you best? 👇
` + combinedMenu + `

Reply with the two letters, e.g. SB 💫
Or: I already attended`,

	FallbackRB: `Hey {{.Name}} 🌸
Your free Zoom link is still here for you:
{{.ZoomLink}}

Pick your day + time 👇
` + combinedMenu,

	FallbackS1: `Hey {{.Name}}! 🌸
Is Inner Joy your new goal? 💫
3 months membership, $80 💖
{{.MembershipLink}}`,

	FallbackS2: `Hi {{.Name}} 🌿
Not sure yet? Try our Fair Trial, 10 days for $12:
{{.TrialLink}}

Or the full experience, 3 months for $80:
{{.MembershipLink}}`,

	Reinvite: `Hello {{.Name}} 🌸
I'd love to invite you again 💕
Join me this weekend for another playful Inner Joy Zoom session 🌈

Free preview link:
{{.ZoomLink}}

Which day suits you? 👇
` + slotMenu + `

Or start your 3-month membership, $80 💖
{{.MembershipLink}}`,

	MemberWelcome: `Congratulations, {{.Name}}! 🌸
You're now a member of Renew Your Inner Joy ✨

Daily live 20-minute sessions, Monday to Friday.
This week's Zoom link:
{{.MemberZoomLink}}

Recordings:
{{.YouTubeLink}}

💛 So happy to have you with us
{{.SenderName}}`,

	TrialWelcome: `Congratulations, {{.Name}}! 🌸
Your Fair Trial is active ✨
On day 7 we'll remind you; with no action it rolls into the full 3-month membership.

This week's Zoom link:
{{.MemberZoomLink}}

💛 So happy you've joined`,
}
